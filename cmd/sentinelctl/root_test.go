// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/sentinel/internal/engine"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/resource"
	"github.com/tomtom215/sentinel/internal/simulate"
	"github.com/tomtom215/sentinel/internal/trust"
)

// fakeRunner records calls and returns canned results.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	serverID *int64
	force    bool
	keep     time.Duration
	scan     engine.ScanSummary
	failOn   string
	settings map[string]string
}

func (f *fakeRunner) hit(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if name == f.failOn {
		return errors.New(name + " failed")
	}
	return nil
}

func (f *fakeRunner) RunDDoSProfile(_ context.Context, profile string, wl []string) (engine.ProfileSummary, error) {
	return engine.ProfileSummary{Profile: profile, Whitelist: wl, Changed: true}, f.hit("ddos")
}

func (f *fakeRunner) RunAdaptiveCycle(context.Context) (engine.AdaptiveSummary, error) {
	return engine.AdaptiveSummary{Samples: 3, DDoSThreshold: 120}, f.hit("adaptive")
}

func (f *fakeRunner) RunTrustAutomation(_ context.Context, id *int64, force bool) (trust.Result, error) {
	f.mu.Lock()
	f.serverID, f.force = id, force
	f.mu.Unlock()
	return trust.Result{}, f.hit("trust")
}

func (f *fakeRunner) RunResourceSafety(_ context.Context, id *int64, force bool) (resource.Result, error) {
	f.mu.Lock()
	f.serverID, f.force = id, force
	f.mu.Unlock()
	return resource.Result{}, f.hit("resource")
}

func (f *fakeRunner) RunNodeSecureScan(_ context.Context, id int64, path string, _ bool) (engine.ScanSummary, error) {
	res := f.scan
	res.ServerID, res.Root = id, path
	return res, f.hit("scan")
}

func (f *fakeRunner) RunReputationSync(context.Context) (reputation.Result, error) {
	return reputation.Result{}, f.hit("reputation")
}

func (f *fakeRunner) RunSimulation(_ context.Context, typ string, n int) (simulate.Result, error) {
	return simulate.Result{Type: typ, Intensity: n, Events: n}, f.hit("simulate")
}

func (f *fakeRunner) RunRetention(_ context.Context, keep time.Duration) (engine.RetentionSummary, error) {
	f.keep = keep
	return engine.RetentionSummary{EventsPruned: 7}, f.hit("retention")
}

func (f *fakeRunner) Quarantine(_ context.Context, id int64, minutes int) (engine.QuarantineSummary, error) {
	return engine.QuarantineSummary{ServerID: id, Quarantined: true, Minutes: minutes}, f.hit("quarantine")
}

func (f *fakeRunner) QuarantineStatus(_ context.Context, id int64) (engine.QuarantineSummary, error) {
	return engine.QuarantineSummary{ServerID: id}, f.hit("quarantine_status")
}

func (f *fakeRunner) LookupIndicator(_ context.Context, typ, value string) ([]reputation.Indicator, error) {
	return []reputation.Indicator{{Type: typ, Value: value, Confidence: 80}}, f.hit("indicator")
}

func (f *fakeRunner) Settings(context.Context) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeRunner) SetSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	if f.settings == nil {
		f.settings = map[string]string{}
	}
	f.settings[key] = value
	f.mu.Unlock()
	return f.hit("set_setting")
}

// execute runs the CLI against r and returns stdout.
func execute(t *testing.T, r *fakeRunner, args ...string) (string, error) {
	t.Helper()
	closed := false
	root := newRootCmd(func(context.Context) (Runner, func() error, error) {
		return r, func() error { closed = true; return nil }, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if len(r.calls) > 0 {
		assert.True(t, closed, "engine must be closed after the command")
	}
	return out.String(), err
}

func TestCycleTrustScopedAndForced(t *testing.T) {
	r := &fakeRunner{}
	_, err := execute(t, r, "cycle", "trust", "--server", "42", "--force")
	require.NoError(t, err)
	require.NotNil(t, r.serverID)
	assert.Equal(t, int64(42), *r.serverID)
	assert.True(t, r.force)
}

func TestCycleResourceWholeFleetByDefault(t *testing.T) {
	r := &fakeRunner{}
	_, err := execute(t, r, "cycle", "resource")
	require.NoError(t, err)
	assert.Nil(t, r.serverID)
	assert.False(t, r.force)
}

func TestCycleAdaptiveJSON(t *testing.T) {
	out, err := execute(t, &fakeRunner{}, "cycle", "adaptive", "--json")
	require.NoError(t, err)

	var got engine.AdaptiveSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Samples)
	assert.Equal(t, 120, got.DDoSThreshold)
}

func TestCycleAdaptiveText(t *testing.T) {
	out, err := execute(t, &fakeRunner{}, "cycle", "adaptive")
	require.NoError(t, err)
	assert.Contains(t, out, "ddos_threshold")
	assert.Contains(t, out, "120")
	assert.NotContains(t, out, "{")
}

func TestCycleRetentionKeepFlag(t *testing.T) {
	r := &fakeRunner{}
	_, err := execute(t, r, "cycle", "retention", "--keep", "72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, r.keep)
}

func TestCycleAllRunsEveryPeriodicCycle(t *testing.T) {
	r := &fakeRunner{}
	out, err := execute(t, r, "cycle", "all", "--json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"adaptive", "trust", "resource", "reputation"}, r.calls)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, 4)
}

func TestCycleAllReturnsFirstError(t *testing.T) {
	r := &fakeRunner{failOn: "reputation"}
	_, err := execute(t, r, "cycle", "all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reputation failed")
}

func TestDDoSWhitelist(t *testing.T) {
	out, err := execute(t, &fakeRunner{}, "ddos", "under_attack", "--whitelist", "10.0.0.1,192.168.0.0/24", "--json")
	require.NoError(t, err)

	var got engine.ProfileSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "under_attack", got.Profile)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/24"}, got.Whitelist)
}

func TestScanBlockDeployExitError(t *testing.T) {
	r := &fakeRunner{scan: engine.ScanSummary{WarningsCount: 2, Severity: eventlog.RiskCritical, BlockDeploy: true}}
	out, err := execute(t, r, "scan", "9", "--path", "/srv/app", "--json")
	require.ErrorIs(t, err, errBlockDeploy)

	var got engine.ScanSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got), "result is printed even when blocked")
	assert.Equal(t, int64(9), got.ServerID)
	assert.Equal(t, "/srv/app", got.Root)
}

func TestServerIDValidation(t *testing.T) {
	for _, arg := range []string{"abc", "0", "-1"} {
		r := &fakeRunner{}
		_, err := execute(t, r, "scan", "--", arg)
		require.Error(t, err, arg)
		assert.Empty(t, r.calls, "no engine call for %q", arg)
	}
}

func TestQuarantineStatusAndSet(t *testing.T) {
	r := &fakeRunner{}
	_, err := execute(t, r, "quarantine", "5")
	require.NoError(t, err)
	_, err = execute(t, r, "quarantine", "5", "--minutes", "30")
	require.NoError(t, err)
	assert.Equal(t, []string{"quarantine_status", "quarantine"}, r.calls)
}

func TestSimulateDefaultIntensity(t *testing.T) {
	out, err := execute(t, &fakeRunner{}, "simulate", "bruteforce", "--json")
	require.NoError(t, err)
	var got simulate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 25, got.Intensity)
}

func TestIndicatorListPrintsJSON(t *testing.T) {
	out, err := execute(t, &fakeRunner{}, "indicator", "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "["), "lists render as JSON: %s", out)
	assert.Contains(t, out, "203.0.113.5")
}

func TestSettingsSet(t *testing.T) {
	r := &fakeRunner{}
	out, err := execute(t, r, "settings", "set", "ddos_burst_threshold_10s", "150")
	require.NoError(t, err)
	assert.Contains(t, out, "150")
	assert.Equal(t, "150", r.settings["ddos_burst_threshold_10s"])
}

func TestOpenerErrorIsReturned(t *testing.T) {
	root := newRootCmd(func(context.Context) (Runner, func() error, error) {
		return nil, nil, errors.New("duckdb locked")
	})
	root.SetArgs([]string{"cycle", "adaptive"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duckdb locked")
}
