// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package anomaly keeps an exponentially weighted baseline per (server,
// metric) and flags observations whose z-score exceeds a threshold.
package anomaly

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

const (
	// MinAlpha and MaxAlpha bound the EWMA smoothing factor.
	MinAlpha = 0.05
	MaxAlpha = 0.8

	// MinThreshold and MaxThreshold bound the anomaly z-score threshold.
	MinThreshold = 1.2
	MaxThreshold = 8.0

	// HighRiskMargin is how far above the threshold a z-score must be for
	// an anomaly to be logged as high rather than medium risk.
	HighRiskMargin = 1.5

	epsilon         = 1e-9
	initialVariance = 1.0
)

// ErrBaselineNotFound is returned by BaselineStore.Get for unseen keys.
var ErrBaselineNotFound = errors.New("anomaly: baseline not found")

// Baseline is the running statistical state of one metric on one server.
type Baseline struct {
	ServerID     int64     `json:"server_id"`
	MetricKey    string    `json:"metric_key"`
	EWMA         float64   `json:"ewma"`
	Variance     float64   `json:"variance"`
	LastValue    float64   `json:"last_value"`
	AnomalyScore float64   `json:"anomaly_score"`
	SampleCount  int64     `json:"sample_count"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Update folds value into b and returns the z-score of value against the
// baseline as it stood before the update. The first observation seeds the
// baseline and scores zero.
func (b *Baseline) Update(value, alpha float64, at time.Time) float64 {
	alpha = ClampAlpha(alpha)

	var z float64
	if b.SampleCount == 0 {
		b.EWMA = value
		b.Variance = initialVariance
	} else {
		delta := value - b.EWMA
		b.EWMA = (1-alpha)*b.EWMA + alpha*value
		b.Variance = (1-alpha)*b.Variance + alpha*delta*delta
		z = math.Abs(delta) / math.Sqrt(math.Max(b.Variance, epsilon))
	}

	b.LastValue = value
	b.AnomalyScore = z
	b.SampleCount++
	b.LastSeenAt = at
	return z
}

// ClampAlpha bounds alpha to [MinAlpha, MaxAlpha].
func ClampAlpha(alpha float64) float64 {
	if math.IsNaN(alpha) {
		return MinAlpha
	}
	return math.Max(MinAlpha, math.Min(MaxAlpha, alpha))
}

// ClampThreshold bounds threshold to [MinThreshold, MaxThreshold].
func ClampThreshold(threshold float64) float64 {
	if math.IsNaN(threshold) {
		return MaxThreshold
	}
	return math.Max(MinThreshold, math.Min(MaxThreshold, threshold))
}

// BaselineStore persists baselines keyed by (server, metric).
type BaselineStore interface {
	Get(ctx context.Context, serverID int64, metricKey string) (*Baseline, error)
	Put(ctx context.Context, b *Baseline) error
}

type baselineKey struct {
	server int64
	metric string
}

// MemoryStore is an in-memory BaselineStore.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[baselineKey]Baseline
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[baselineKey]Baseline)}
}

// Get implements BaselineStore.
func (s *MemoryStore) Get(_ context.Context, serverID int64, metricKey string) (*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.rows[baselineKey{serverID, metricKey}]
	if !ok {
		return nil, ErrBaselineNotFound
	}
	return &b, nil
}

// Put implements BaselineStore.
func (s *MemoryStore) Put(_ context.Context, b *Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[baselineKey{b.ServerID, b.MetricKey}] = *b
	return nil
}
