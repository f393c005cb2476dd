// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package ddos

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/settings"
)

// Tuning constants for the burst threshold.
const (
	TuneWindow      = 30 * time.Minute
	MinBurst        = 40
	MaxBurst        = 800
	TightenStep     = 10
	RelaxStep       = 5
	TightenAtEvents = 100
	RelaxAtEvents   = 8
)

// Tuner adjusts ddos_burst_threshold_10s from recent rate-limit pressure.
type Tuner struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	notifier eventbus.Notifier
}

// NewTuner creates a Tuner. notifier may be nil.
func NewTuner(s *settings.Accessor, events *eventlog.Recorder, notifier eventbus.Notifier) *Tuner {
	return &Tuner{settings: s, events: events, notifier: notifier}
}

// NextThreshold is the pure tuning rule.
func NextThreshold(current int, count int64) int {
	switch {
	case count >= TightenAtEvents:
		return max(MinBurst, current-TightenStep)
	case count <= RelaxAtEvents:
		return min(MaxBurst, current+RelaxStep)
	default:
		return current
	}
}

// Tune runs one tuning step and returns the threshold in effect afterwards.
func (t *Tuner) Tune(ctx context.Context) (int, error) {
	current := t.settings.Int(ctx, settings.DDoSBurstThreshold10s)
	metrics.DDoSBurstThreshold.Set(float64(current))

	if !t.settings.Bool(ctx, settings.DDoSAutoTuneEnabled) {
		return current, nil
	}

	count, err := t.events.Store().Count(ctx, eventlog.Filter{
		Types: []string{eventlog.TypeRateLimited, eventlog.TypeDDoSBurstBlocked},
		Since: t.events.Now().Add(-TuneWindow),
	})
	if err != nil {
		return current, fmt.Errorf("count rate-limit events: %w", err)
	}

	next := NextThreshold(current, count)
	if next == current {
		return current, nil
	}

	if err := t.settings.Set(ctx, settings.DDoSBurstThreshold10s, strconv.Itoa(next)); err != nil {
		return current, fmt.Errorf("persist burst threshold: %w", err)
	}
	metrics.DDoSBurstThreshold.Set(float64(next))

	logging.Ctx(ctx).Info().
		Int("old", current).
		Int("new", next).
		Int64("events", count).
		Msg("DDoS burst threshold tuned")

	if _, err := t.events.Record(ctx, eventlog.TypeDDoSThresholdTuned, eventlog.Payload{
		RiskLevel: eventlog.RiskInfo,
		Meta: map[string]any{
			"old":   current,
			"new":   next,
			"count": count,
		},
	}); err != nil {
		return next, err
	}

	eventbus.Notify(ctx, t.notifier, eventbus.Notification{
		Kind:     eventlog.TypeDDoSThresholdTuned,
		Title:    "DDoS threshold tuned",
		Message:  fmt.Sprintf("Burst threshold %d -> %d (%d events in %s)", current, next, count, TuneWindow),
		Severity: string(eventlog.RiskInfo),
	})
	return next, nil
}
