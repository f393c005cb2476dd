// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/sentinel/internal/logging"
)

// RunFunc runs one cycle. Errors are logged and the schedule continues.
type RunFunc func(ctx context.Context) error

// CycleService runs an automation cycle on a fixed interval. The first run
// starts immediately. Runs never overlap within one service; each is
// bounded by the cycle timeout.
type CycleService struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      RunFunc

	runs     atomic.Int64
	failures atomic.Int64
}

// NewCycleService creates a scheduled cycle. A zero timeout means the
// interval.
func NewCycleService(name string, interval, timeout time.Duration, run RunFunc) *CycleService {
	if timeout <= 0 {
		timeout = interval
	}
	return &CycleService{name: name, interval: interval, timeout: timeout, run: run}
}

// Serve implements suture.Service. A cycle with no interval is disabled
// and tells the supervisor not to restart it.
func (c *CycleService) Serve(ctx context.Context) error {
	if c.interval <= 0 {
		logging.Info().Str("cycle", c.name).Msg("Cycle disabled")
		return suture.ErrDoNotRestart
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *CycleService) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.runs.Add(1)
	if err := c.run(runCtx); err != nil && ctx.Err() == nil {
		c.failures.Add(1)
		logging.Warn().Err(err).Str("cycle", c.name).Msg("Scheduled cycle returned an error")
	}
}

// Runs returns how many times the cycle has run.
func (c *CycleService) Runs() int64 { return c.runs.Load() }

// Failures returns how many runs returned an error.
func (c *CycleService) Failures() int64 { return c.failures.Load() }

// String implements fmt.Stringer.
func (c *CycleService) String() string {
	return "cycle-" + c.name
}
