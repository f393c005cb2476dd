// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package eventlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists events and risk snapshots.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter Filter) ([]*Event, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	SummarizeByIP(ctx context.Context, since time.Time) ([]IPSummary, error)

	// UpsertRiskSnapshot creates or refreshes the snapshot for identifier.
	// country is written only when the stored country is empty.
	UpsertRiskSnapshot(ctx context.Context, identifier, country string, seenAt time.Time) error
	GetRiskSnapshot(ctx context.Context, identifier string) (*RiskSnapshot, error)

	// Prune deletes events created before olderThan.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []*Event
	snapshots map[string]*RiskSnapshot
	maxLen    int
}

// NewMemoryStore creates an in-memory store bounded to maxLen events.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &MemoryStore{
		events:    make([]*Event, 0, 256),
		snapshots: make(map[string]*RiskSnapshot),
		maxLen:    maxLen,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		s.events = s.events[s.maxLen/10:]
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// Query implements Store. Results are newest first.
func (s *MemoryStore) Query(_ context.Context, filter Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !matches(e, &filter) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if matches(e, &filter) {
			n++
		}
	}
	return n, nil
}

// SummarizeByIP implements Store.
func (s *MemoryStore) SummarizeByIP(_ context.Context, since time.Time) ([]IPSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ ip, typ string }
	agg := make(map[key]*IPSummary)
	for _, e := range s.events {
		if e.IP == "" || e.CreatedAt.Before(since) {
			continue
		}
		k := key{e.IP, e.EventType}
		sum, ok := agg[k]
		if !ok {
			sum = &IPSummary{IP: e.IP, EventType: e.EventType, MaxRisk: RiskInfo}
			agg[k] = sum
		}
		sum.Count++
		sum.MaxRisk = MaxRisk(sum.MaxRisk, e.RiskLevel)
		if e.CreatedAt.After(sum.LastSeen) {
			sum.LastSeen = e.CreatedAt
		}
	}

	out := make([]IPSummary, 0, len(agg))
	for _, v := range agg {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].EventType < out[j].EventType
	})
	return out, nil
}

// UpsertRiskSnapshot implements Store.
func (s *MemoryStore) UpsertRiskSnapshot(_ context.Context, identifier, country string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[identifier]
	if !ok {
		snap = &RiskSnapshot{Identifier: identifier, RiskMode: "normal"}
		s.snapshots[identifier] = snap
	}
	snap.LastSeenAt = seenAt
	if snap.GeoCountry == "" && country != "" {
		snap.GeoCountry = country
	}
	return nil
}

// GetRiskSnapshot implements Store.
func (s *MemoryStore) GetRiskSnapshot(_ context.Context, identifier string) (*RiskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func matches(e *Event, f *Filter) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ServerID != nil && (e.ServerID == nil || *e.ServerID != *f.ServerID) {
		return false
	}
	if f.IP != "" && e.IP != f.IP {
		return false
	}
	if f.MinRisk != "" && !e.RiskLevel.AtLeast(f.MinRisk) {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
