// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/engine"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/resource"
	"github.com/tomtom215/sentinel/internal/trust"
)

type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	forced    bool
	scoped    bool
	retention time.Duration
}

func (f *fakeRunner) record(name string, serverID *int64, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.forced = f.forced || force
	f.scoped = f.scoped || serverID != nil
}

func (f *fakeRunner) RunAdaptiveCycle(context.Context) (engine.AdaptiveSummary, error) {
	f.record(engine.CycleAdaptive, nil, false)
	return engine.AdaptiveSummary{}, nil
}

func (f *fakeRunner) RunTrustAutomation(_ context.Context, id *int64, force bool) (trust.Result, error) {
	f.record(engine.CycleTrust, id, force)
	return trust.Result{}, nil
}

func (f *fakeRunner) RunResourceSafety(_ context.Context, id *int64, force bool) (resource.Result, error) {
	f.record(engine.CycleResource, id, force)
	return resource.Result{}, nil
}

func (f *fakeRunner) RunReputationSync(context.Context) (reputation.Result, error) {
	f.record(engine.CycleReputation, nil, false)
	return reputation.Result{}, nil
}

func (f *fakeRunner) RunRetention(_ context.Context, keep time.Duration) (engine.RetentionSummary, error) {
	f.mu.Lock()
	f.retention = keep
	f.mu.Unlock()
	f.record(engine.CycleRetention, nil, false)
	return engine.RetentionSummary{}, nil
}

func TestCycleServicesSkipsDisabledIntervals(t *testing.T) {
	cfg := config.SchedulerConfig{
		AdaptiveInterval:  time.Minute,
		TrustInterval:     0,
		ResourceInterval:  time.Minute,
		RetentionInterval: time.Hour,
		CycleTimeout:      time.Second,
	}
	svcs := cycleServices(cfg, 24*time.Hour, &fakeRunner{})

	var names []string
	for _, s := range svcs {
		names = append(names, s.String())
	}
	want := []string{"cycle-adaptive", "cycle-resource", "cycle-retention"}
	if len(names) != len(want) {
		t.Fatalf("services = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("services[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestCycleServicesRunWholeFleetWithoutForce(t *testing.T) {
	cfg := config.SchedulerConfig{
		AdaptiveInterval:   time.Hour,
		TrustInterval:      time.Hour,
		ResourceInterval:   time.Hour,
		ReputationInterval: time.Hour,
		RetentionInterval:  time.Hour,
		CycleTimeout:       time.Second,
	}
	runner := &fakeRunner{}
	svcs := cycleServices(cfg, 48*time.Hour, runner)
	if len(svcs) != 5 {
		t.Fatalf("got %d services, want 5", len(svcs))
	}

	// Each service runs once immediately on Serve.
	for _, svc := range svcs {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		_ = svc.Serve(ctx)
		cancel()
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.calls) != 5 {
		t.Errorf("calls = %v, want one per cycle", runner.calls)
	}
	if runner.forced || runner.scoped {
		t.Error("scheduled cycles must not force or scope to one server")
	}
	if runner.retention != 48*time.Hour {
		t.Errorf("retention = %v, want 48h", runner.retention)
	}
}
