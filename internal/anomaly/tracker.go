// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/settings"
)

// Metric keys observed for every server with a reputation row.
const (
	MetricTrust     = "reputation.trust"
	MetricStability = "reputation.stability"
	MetricUptime    = "reputation.uptime"
	MetricAbuse     = "reputation.abuse"
)

// CycleResult summarizes one adaptive cycle.
type CycleResult struct {
	Samples   int `json:"samples"`
	Anomalies int `json:"anomalies"`
	Errors    int `json:"errors"`
}

// Tracker updates baselines and records anomalies.
type Tracker struct {
	store    BaselineStore
	reps     fleet.ReputationProvider
	settings *settings.Accessor
	events   *eventlog.Recorder
	now      func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(store BaselineStore, reps fleet.ReputationProvider, s *settings.Accessor, events *eventlog.Recorder) *Tracker {
	return &Tracker{store: store, reps: reps, settings: s, events: events, now: events.Now}
}

// Observe folds value into the (serverID, metricKey) baseline, persists it,
// and returns the z-score.
func (t *Tracker) Observe(ctx context.Context, serverID int64, metricKey string, value, alpha float64) (float64, error) {
	b, err := t.store.Get(ctx, serverID, metricKey)
	if errors.Is(err, ErrBaselineNotFound) {
		b = &Baseline{ServerID: serverID, MetricKey: metricKey}
	} else if err != nil {
		return 0, fmt.Errorf("load baseline %d/%s: %w", serverID, metricKey, err)
	}

	z := b.Update(value, alpha, t.now().UTC())
	if err := t.store.Put(ctx, b); err != nil {
		return 0, fmt.Errorf("save baseline %d/%s: %w", serverID, metricKey, err)
	}
	return z, nil
}

// RunCycle observes every tracked server's reputation metrics once.
func (t *Tracker) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	alpha := ClampAlpha(t.settings.Float(ctx, settings.AdaptiveAlpha))
	threshold := ClampThreshold(t.settings.Float(ctx, settings.AdaptiveAnomalyThreshold))
	pageSize := t.settings.Int(ctx, settings.AdaptivePageSize)

	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := t.reps.ListReputations(ctx, after, pageSize)
		if err != nil {
			return res, fmt.Errorf("list reputations: %w", err)
		}

		for _, rep := range page {
			after = rep.ServerID
			t.observeReputation(ctx, rep, alpha, threshold, &res)
		}
		if len(page) < pageSize {
			break
		}
	}

	logging.Ctx(ctx).Info().
		Int("samples", res.Samples).
		Int("anomalies", res.Anomalies).
		Int("errors", res.Errors).
		Float64("alpha", alpha).
		Float64("threshold", threshold).
		Msg("Adaptive cycle complete")
	return res, nil
}

func (t *Tracker) observeReputation(ctx context.Context, rep fleet.Reputation, alpha, threshold float64, res *CycleResult) {
	samples := []struct {
		key   string
		value float64
	}{
		{MetricTrust, rep.Trust},
		{MetricStability, rep.Stability},
		{MetricUptime, rep.Uptime},
		{MetricAbuse, rep.Abuse},
	}

	for _, s := range samples {
		z, err := t.Observe(ctx, rep.ServerID, s.key, s.value, alpha)
		if err != nil {
			res.Errors++
			metrics.CycleErrorsTotal.WithLabelValues("adaptive").Inc()
			logging.Ctx(ctx).Warn().Err(err).Int64("server_id", rep.ServerID).Str("metric", s.key).Msg("Baseline update failed")
			continue
		}
		res.Samples++

		if z < threshold {
			continue
		}
		res.Anomalies++
		metrics.AnomaliesDetectedTotal.Inc()

		risk := eventlog.RiskMedium
		if z >= threshold+HighRiskMargin {
			risk = eventlog.RiskHigh
		}
		if _, err := t.events.Record(ctx, eventlog.TypeTrustAnomaly, eventlog.Payload{
			ServerID:  eventlog.Int64(rep.ServerID),
			RiskLevel: risk,
			Meta: map[string]any{
				"metric":    s.key,
				"value":     s.value,
				"z_score":   z,
				"threshold": threshold,
			},
		}); err != nil {
			res.Errors++
			logging.Ctx(ctx).Error().Err(err).Int64("server_id", rep.ServerID).Msg("Failed to record anomaly")
		}
	}
}
