// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package nodescan

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/settings"
)

// Memory tracker limits.
const (
	MaxMemorySamples = 30
	memorySamplesTTL = 6 * time.Hour
	leakCooldown     = 30 * time.Minute
)

// Sample is one runtime memory reading reported by a server's node agent.
type Sample struct {
	HeapUsedBytes    int64     `json:"heap_used_bytes" validate:"gte=0"`
	HeapTotalBytes   int64     `json:"heap_total_bytes" validate:"gte=0"`
	RSSBytes         int64     `json:"rss_bytes" validate:"gte=0"`
	GCReclaimedBytes int64     `json:"gc_reclaimed_bytes" validate:"gte=0"`
	At               time.Time `json:"at"`
}

// LeakReport is the tracker's view after a sample.
type LeakReport struct {
	ServerID       int64   `json:"server_id"`
	Samples        int     `json:"samples"`
	GrowthPairs    int     `json:"growth_pairs"`
	ReclaimPercent float64 `json:"reclaim_percent"`
	Leak           bool    `json:"leak"`
	Recorded       bool    `json:"recorded"`
}

func memoryKey(serverID int64) string {
	return "node:mem:" + strconv.FormatInt(serverID, 10)
}

func leakCooldownKey(serverID int64) string {
	return "node:mem_leak:" + strconv.FormatInt(serverID, 10)
}

// MemoryTracker detects steady heap growth that garbage collection does
// not win back.
type MemoryTracker struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	store    kv.Store
}

// NewMemoryTracker creates a tracker.
func NewMemoryTracker(s *settings.Accessor, events *eventlog.Recorder, store kv.Store) *MemoryTracker {
	return &MemoryTracker{settings: s, events: events, store: store}
}

// Ingest appends sample to the server's window and evaluates it. A leak is
// recorded at most once per cooldown.
func (m *MemoryTracker) Ingest(ctx context.Context, serverID int64, sample Sample) (LeakReport, error) {
	if sample.At.IsZero() {
		sample.At = m.events.Now()
	}

	var window []Sample
	if _, err := kv.GetJSON(ctx, m.store, memoryKey(serverID), &window); err != nil {
		return LeakReport{}, fmt.Errorf("load memory samples: %w", err)
	}
	window = append(window, sample)
	if len(window) > MaxMemorySamples {
		window = window[len(window)-MaxMemorySamples:]
	}
	if err := kv.SetJSON(ctx, m.store, memoryKey(serverID), window, memorySamplesTTL); err != nil {
		return LeakReport{}, fmt.Errorf("store memory samples: %w", err)
	}

	rep := m.evaluate(ctx, window)
	rep.ServerID = serverID
	if !rep.Leak {
		return rep, nil
	}

	first, err := m.store.SetNX(ctx, leakCooldownKey(serverID), "1", leakCooldown)
	if err != nil {
		return rep, fmt.Errorf("leak cooldown: %w", err)
	}
	if !first {
		return rep, nil
	}

	logging.Ctx(ctx).Warn().
		Int64("server_id", serverID).
		Int("growth_pairs", rep.GrowthPairs).
		Float64("reclaim_percent", rep.ReclaimPercent).
		Msg("Runtime memory leak suspected")

	_, err = m.events.Record(ctx, eventlog.TypeNodeMemoryLeak, eventlog.Payload{
		ServerID:  eventlog.Int64(serverID),
		RiskLevel: eventlog.RiskHigh,
		Meta: map[string]any{
			"samples":         rep.Samples,
			"growth_pairs":    rep.GrowthPairs,
			"reclaim_percent": rep.ReclaimPercent,
			"heap_used_bytes": sample.HeapUsedBytes,
		},
	})
	rep.Recorded = err == nil
	return rep, err
}

func (m *MemoryTracker) evaluate(ctx context.Context, window []Sample) LeakReport {
	rep := LeakReport{Samples: len(window)}
	if len(window) == 0 {
		return rep
	}
	growthPct := m.settings.Float(ctx, settings.NodeMemoryLeakGrowthPct)
	reclaimPct := m.settings.Float(ctx, settings.NodeMemoryLeakReclaimPct)
	minSamples := m.settings.Int(ctx, settings.NodeMemoryLeakMinSamples)

	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1].HeapUsedBytes, window[i].HeapUsedBytes
		if prev > 0 && float64(cur-prev)/float64(prev)*100 > growthPct {
			rep.GrowthPairs++
		}
	}

	last := window[len(window)-1]
	if last.HeapUsedBytes > 0 {
		rep.ReclaimPercent = float64(last.GCReclaimedBytes) / float64(last.HeapUsedBytes) * 100
	}

	pairs := len(window) - 1
	rep.Leak = len(window) >= minSamples &&
		rep.GrowthPairs*2 > pairs &&
		rep.ReclaimPercent < reclaimPct
	return rep
}
