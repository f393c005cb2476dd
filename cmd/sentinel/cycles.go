// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"time"

	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/engine"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/resource"
	"github.com/tomtom215/sentinel/internal/supervisor/services"
	"github.com/tomtom215/sentinel/internal/trust"
)

// cycleRunner is the scheduled subset of *engine.Engine.
type cycleRunner interface {
	RunAdaptiveCycle(ctx context.Context) (engine.AdaptiveSummary, error)
	RunTrustAutomation(ctx context.Context, serverID *int64, force bool) (trust.Result, error)
	RunResourceSafety(ctx context.Context, serverID *int64, force bool) (resource.Result, error)
	RunReputationSync(ctx context.Context) (reputation.Result, error)
	RunRetention(ctx context.Context, keep time.Duration) (engine.RetentionSummary, error)
}

var _ cycleRunner = (*engine.Engine)(nil)

// cycleServices builds one service per cycle with a positive interval.
// Scheduled runs cover the whole fleet and never force.
func cycleServices(cfg config.SchedulerConfig, retention time.Duration, e cycleRunner) []*services.CycleService {
	specs := []struct {
		name     string
		interval time.Duration
		run      services.RunFunc
	}{
		{engine.CycleAdaptive, cfg.AdaptiveInterval, func(ctx context.Context) error {
			_, err := e.RunAdaptiveCycle(ctx)
			return err
		}},
		{engine.CycleTrust, cfg.TrustInterval, func(ctx context.Context) error {
			_, err := e.RunTrustAutomation(ctx, nil, false)
			return err
		}},
		{engine.CycleResource, cfg.ResourceInterval, func(ctx context.Context) error {
			_, err := e.RunResourceSafety(ctx, nil, false)
			return err
		}},
		{engine.CycleReputation, cfg.ReputationInterval, func(ctx context.Context) error {
			_, err := e.RunReputationSync(ctx)
			return err
		}},
		{engine.CycleRetention, cfg.RetentionInterval, func(ctx context.Context) error {
			_, err := e.RunRetention(ctx, retention)
			return err
		}},
	}

	out := make([]*services.CycleService, 0, len(specs))
	for _, s := range specs {
		if s.interval <= 0 {
			continue
		}
		out = append(out, services.NewCycleService(s.name, s.interval, cfg.CycleTimeout, s.run))
	}
	return out
}
