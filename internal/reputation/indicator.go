// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package reputation exchanges threat indicators with a peer reputation
// network: locally observed abusive IPs are pushed, and the network's
// indicators are pulled into a local store with a bounded lifetime.
package reputation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no indicator matches.
var ErrNotFound = errors.New("reputation: indicator not found")

// Indicator types.
const (
	TypeIP = "ip"
)

// Indicator is a threat indicator shared with the network.
type Indicator struct {
	Type       string    `json:"type"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	Category   string    `json:"category,omitempty"`
	Confidence int       `json:"confidence"`
	RiskLevel  string    `json:"risk_level,omitempty"`
	Count      int64     `json:"count,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the indicator has not expired at now.
func (i *Indicator) Active(now time.Time) bool {
	return i.ExpiresAt.IsZero() || now.Before(i.ExpiresAt)
}

// IndicatorStore persists pulled indicators keyed by (type, value, source).
type IndicatorStore interface {
	Upsert(ctx context.Context, ind Indicator) error
	// Lookup returns the active indicators for (type, value) from any source,
	// highest confidence first.
	Lookup(ctx context.Context, typ, value string, now time.Time) ([]Indicator, error)
	// PruneExpired deletes indicators expired at now.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

type indicatorKey struct {
	typ, value, source string
}

// MemoryStore is an in-memory IndicatorStore.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[indicatorKey]Indicator
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[indicatorKey]Indicator)}
}

// Upsert implements IndicatorStore.
func (s *MemoryStore) Upsert(_ context.Context, ind Indicator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[indicatorKey{ind.Type, ind.Value, ind.Source}] = ind
	return nil
}

// Lookup implements IndicatorStore.
func (s *MemoryStore) Lookup(_ context.Context, typ, value string, now time.Time) ([]Indicator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Indicator
	for k, ind := range s.rows {
		if k.typ == typ && k.value == value && ind.Active(now) {
			out = append(out, ind)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

// PruneExpired implements IndicatorStore.
func (s *MemoryStore) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, ind := range s.rows {
		if !ind.Active(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored indicators, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
