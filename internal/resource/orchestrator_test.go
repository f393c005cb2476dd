// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package resource

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/sentinel/internal/ddos"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/policy"
	"github.com/tomtom215/sentinel/internal/remote"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/testinfra"
	"github.com/tomtom215/sentinel/internal/trust"
)

type fixture struct {
	env      *testinfra.Env
	control  *remote.MemoryControl
	firewall *remote.MemoryFirewall
	orch     *Orchestrator
}

func newFixture(t *testing.T, initial map[string]string) *fixture {
	t.Helper()
	env := testinfra.NewEnv(t, initial)
	f := &fixture{
		env:      env,
		control:  remote.NewMemoryControl(),
		firewall: remote.NewMemoryFirewall(),
	}
	f.orch = New(Deps{
		Settings: env.Settings,
		Events:   env.Recorder,
		Store:    env.KV,
		Dir:      env.Directory,
		Control:  f.control,
		Firewall: f.firewall,
		Profiles: ddos.NewProfiles(env.Settings, env.Recorder, nil),
		Notifier: env.Notifier,
	})
	return f
}

const gb = int64(1) << 30

func TestEnforcementOnThirdViolation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.env.Directory.Put(fleet.Server{ID: 1, OwnerID: 10})
	f.control.SetUtilization(1, remote.Utilization{CPUPercent: 99})

	for cycle := 1; cycle <= 2; cycle++ {
		res, err := f.orch.Run(ctx, Options{})
		if err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
		if res.Violations != 1 || res.Enforced != 0 {
			t.Fatalf("cycle %d: %+v, want one violation and no enforcement", cycle, res)
		}
		f.env.Clock.Advance(time.Minute)
	}

	res, err := f.orch.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("cycle 3: %v", err)
	}
	if res.Enforced != 1 || res.Stopped != 1 || res.Suspended != 1 {
		t.Errorf("cycle 3 = %+v, want enforced, stopped and suspended", res)
	}
	if res.DeletedServers != 0 || res.PermanentIPBans != 0 {
		t.Errorf("permanent actions ran with permanent actions disabled: %+v", res)
	}

	if _, found, _ := f.env.KV.Get(ctx, violationsKey(1)); found {
		t.Error("violation counter should be cleared after enforcement")
	}
	if ok, _ := trust.IsQuarantined(ctx, f.env.KV, 1); !ok {
		t.Error("server should be quarantined")
	}
	if got := f.control.Calls(); !reflect.DeepEqual(got, []string{"stop:1"}) {
		t.Errorf("power calls = %v", got)
	}
	if n := len(f.env.EventsOfType(t, eventlog.TypeResourceViolation)); n != 3 {
		t.Errorf("violation events = %d, want 3", n)
	}
	if n := len(f.env.EventsOfType(t, eventlog.TypeResourceEnforcement)); n != 1 {
		t.Errorf("enforcement events = %d, want 1", n)
	}

	// Suspended servers are skipped on the next cycle.
	res, err = f.orch.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("cycle 4: %v", err)
	}
	if res.Checked != 0 {
		t.Errorf("cycle 4 checked = %d, want 0 after suspension", res.Checked)
	}
}

func TestNoPermanentActionsOnCPUSpikeOnly(t *testing.T) {
	f := newFixture(t, map[string]string{
		settings.ResourceViolationThreshold:    "1",
		settings.ResourcePermanentEnabled:      "true",
		settings.ResourcePermanentDeleteOwner:  "true",
		settings.ResourcePermanentOnlyStorage:  "true",
		settings.ResourceSuspendOnEnforce:      "false",
		settings.ResourcePermanentDeleteServer: "true",
	})
	ctx := context.Background()
	f.env.Directory.Put(fleet.Server{ID: 2, OwnerID: 20, OwnerLastIP: "203.0.113.20", Limits: fleet.Limits{CPUPercent: 400}})
	f.control.SetUtilization(2, remote.Utilization{CPUPercent: 390})

	res, err := f.orch.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Enforced != 1 {
		t.Fatalf("result = %+v, want enforcement", res)
	}
	if res.DeletedServers != 0 || res.DeletedUsers != 0 || res.PermanentIPBans != 0 {
		t.Errorf("permanent actions ran on cpu_spike only: %+v", res)
	}
	if banned := f.firewall.Banned(); len(banned) != 0 {
		t.Errorf("banned = %v", banned)
	}
	if _, err := f.env.Directory.GetServer(ctx, 2); err != nil {
		t.Errorf("server deleted: %v", err)
	}

	for _, step := range f.env.EventsOfType(t, eventlog.TypeResourceEnforceStep) {
		if step.Meta["step"] == string(policy.ActionDeleteServer) && step.Meta["outcome"] != OutcomeDenied {
			t.Errorf("delete_server outcome = %v, want denied", step.Meta["outcome"])
		}
	}
}

func TestStorageSpikeRunsFullLadder(t *testing.T) {
	f := newFixture(t, map[string]string{
		settings.ResourceViolationThreshold:   "1",
		settings.ResourcePermanentEnabled:     "true",
		settings.ResourcePermanentDeleteOwner: "true",
	})
	ctx := context.Background()
	f.env.Directory.Put(fleet.Server{ID: 5, OwnerID: 50, OwnerLastIP: "198.51.100.50", Limits: fleet.Limits{DiskBytes: 10 * gb}})
	f.env.Directory.Put(fleet.Server{ID: 6, OwnerID: 50})
	f.env.Directory.Put(fleet.Server{ID: 7, OwnerID: 50})
	f.env.Directory.Put(fleet.Server{ID: 8, OwnerID: 99})
	f.control.SetUtilization(5, remote.Utilization{DiskBytes: 98 * gb / 10})

	res, err := f.orch.Run(ctx, Options{ServerID: eventlog.Int64(5)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PermanentIPBans != 1 || res.DeletedServers != 3 || res.DeletedUsers != 1 {
		t.Errorf("result = %+v, want 1 ban, 3 deleted servers, 1 deleted user", res)
	}
	if got := f.firewall.Banned(); !reflect.DeepEqual(got, []string{"198.51.100.50"}) {
		t.Errorf("banned = %v", got)
	}
	if !f.env.Directory.UserDeleted(50) {
		t.Error("owner should be deleted")
	}
	if _, err := f.env.Directory.GetServer(ctx, 8); err != nil {
		t.Errorf("unrelated server deleted: %v", err)
	}
}

func TestDeleteOwnerRemovesOffendingServer(t *testing.T) {
	tests := []struct {
		name         string
		deleteServer string
		wantDeleted  int
	}{
		{"server rung denied", "false", 2},
		{"server rung allowed", "true", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{
				settings.ResourceViolationThreshold:    "1",
				settings.ResourcePermanentEnabled:      "true",
				settings.ResourcePermanentDeleteServer: tt.deleteServer,
				settings.ResourcePermanentDeleteOwner:  "true",
			})
			ctx := context.Background()
			f.env.Directory.Put(fleet.Server{ID: 11, OwnerID: 60, Limits: fleet.Limits{DiskBytes: 10 * gb}})
			f.env.Directory.Put(fleet.Server{ID: 12, OwnerID: 60})
			f.control.SetUtilization(11, remote.Utilization{DiskBytes: 98 * gb / 10})

			res, err := f.orch.Run(ctx, Options{ServerID: eventlog.Int64(11)})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.DeletedServers != tt.wantDeleted || res.DeletedUsers != 1 {
				t.Errorf("result = %+v, want %d deleted servers and 1 deleted user", res, tt.wantDeleted)
			}
			if !f.env.Directory.UserDeleted(60) {
				t.Error("owner should be deleted")
			}
			for _, id := range []int64{11, 12} {
				if _, err := f.env.Directory.GetServer(ctx, id); !errors.Is(err, fleet.ErrServerNotFound) {
					t.Errorf("GetServer(%d) = %v, want ErrServerNotFound", id, err)
				}
			}
		})
	}
}

func TestDiskJump(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	srv := fleet.Server{ID: 3}

	det, err := f.orch.Detect(ctx, srv, remote.Utilization{DiskBytes: gb})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(det.Reasons) != 0 {
		t.Fatalf("first reading reasons = %v, want none", det.Reasons)
	}

	det, err = f.orch.Detect(ctx, srv, remote.Utilization{DiskBytes: 7 * gb})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !slices.Contains(det.Reasons, policy.ReasonDiskJumpSpike) {
		t.Errorf("reasons = %v, want disk_jump_spike", det.Reasons)
	}
	if !det.StorageTriggered() {
		t.Error("disk jump should count as a storage trigger")
	}
	if det.DiskDeltaBytes != 6*gb {
		t.Errorf("delta = %d", det.DiskDeltaBytes)
	}
}

func TestDiskJumpByMultiplier(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	srv := fleet.Server{ID: 4}

	_, _ = f.orch.Detect(ctx, srv, remote.Utilization{DiskBytes: 100 << 20})
	det, err := f.orch.Detect(ctx, srv, remote.Utilization{DiskBytes: 300 << 20})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !slices.Contains(det.Reasons, policy.ReasonDiskJumpSpike) {
		t.Errorf("reasons = %v, want disk_jump_spike for a 3x growth", det.Reasons)
	}
}

func TestCPUSuperWallClock(t *testing.T) {
	f := newFixture(t, map[string]string{settings.ResourceCPUSuperCycles: "100"})
	ctx := context.Background()
	srv := fleet.Server{ID: 11, Limits: fleet.Limits{CPUPercent: 800}}
	hot := remote.Utilization{CPUPercent: 790}

	det, _ := f.orch.Detect(ctx, srv, hot)
	if slices.Contains(det.Reasons, policy.ReasonCPUSuperSustain) {
		t.Fatal("sustained on first observation")
	}

	f.env.Clock.Advance(100 * time.Second)
	det, _ = f.orch.Detect(ctx, srv, hot)
	if slices.Contains(det.Reasons, policy.ReasonCPUSuperSustain) {
		t.Fatal("sustained after 100s, want 180s")
	}

	f.env.Clock.Advance(90 * time.Second)
	det, _ = f.orch.Detect(ctx, srv, hot)
	if !slices.Contains(det.Reasons, policy.ReasonCPUSuperSustain) {
		t.Errorf("reasons after 190s = %v, want cpu_super_sustained_spike", det.Reasons)
	}

	// A cool reading clears the streak.
	_, _ = f.orch.Detect(ctx, srv, remote.Utilization{CPUPercent: 100})
	det, _ = f.orch.Detect(ctx, srv, hot)
	if det.CPUSuper.Cycles != 1 {
		t.Errorf("cycles after reset = %d, want 1", det.CPUSuper.Cycles)
	}
}

func TestCPUSuperCyclesAndGap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	srv := fleet.Server{ID: 12}
	hot := remote.Utilization{CPUPercent: 99}

	_, _ = f.orch.Detect(ctx, srv, hot)
	f.env.Clock.Advance(10 * time.Minute)
	det, _ := f.orch.Detect(ctx, srv, hot)
	if det.CPUSuper.Cycles != 1 {
		t.Errorf("cycles after a long gap = %d, want a new streak", det.CPUSuper.Cycles)
	}

	for i := 0; i < 2; i++ {
		f.env.Clock.Advance(30 * time.Second)
		det, _ = f.orch.Detect(ctx, srv, hot)
	}
	if !slices.Contains(det.Reasons, policy.ReasonCPUSuperSustain) {
		t.Errorf("reasons after 3 cycles = %v, want cpu_super_sustained_spike", det.Reasons)
	}
}

func TestExternalSignalConsumedOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	srv := fleet.Server{ID: 13}

	if _, err := f.env.Recorder.Record(ctx, eventlog.TypeNodeCPUSustained, eventlog.Payload{ServerID: eventlog.Int64(13)}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	det, err := f.orch.Detect(ctx, srv, remote.Utilization{CPUPercent: 5})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !slices.Contains(det.Reasons, policy.ReasonExternalCPUSpike) {
		t.Fatalf("reasons = %v, want external_cpu_sustained", det.Reasons)
	}

	det, _ = f.orch.Detect(ctx, srv, remote.Utilization{CPUPercent: 5})
	if len(det.Reasons) != 0 {
		t.Errorf("reasons on second read = %v, want the incident consumed", det.Reasons)
	}
}

func TestStatsFailureCounted(t *testing.T) {
	f := newFixture(t, nil)
	f.env.Directory.Put(fleet.Server{ID: 1})
	f.env.Directory.Put(fleet.Server{ID: 2})
	f.control.Fail("utilization", errors.New("daemon timeout"))

	res, err := f.orch.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Checked != 2 || res.Errors != 2 {
		t.Errorf("result = %+v, want 2 checked with 2 errors", res)
	}
	events := f.env.EventsOfType(t, eventlog.TypeResourceStatsFailed)
	if len(events) != 2 || events[0].RiskLevel != eventlog.RiskHigh {
		t.Errorf("stats failed events = %+v", events)
	}
}

func TestKillWhenStopFails(t *testing.T) {
	f := newFixture(t, map[string]string{settings.ResourceViolationThreshold: "1"})
	f.env.Directory.Put(fleet.Server{ID: 1})
	f.control.SetUtilization(1, remote.Utilization{CPUPercent: 120})
	f.control.Fail("stop", errors.New("power action timed out"))

	res, err := f.orch.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stopped != 1 || res.Errors != 1 {
		t.Errorf("result = %+v, want stopped via kill with one step error", res)
	}
	if got := f.control.Calls(); !reflect.DeepEqual(got, []string{"kill:1"}) {
		t.Errorf("calls = %v, want kill", got)
	}
}

func TestRootOwnedServerNotStopped(t *testing.T) {
	f := newFixture(t, map[string]string{settings.ResourceViolationThreshold: "1"})
	f.env.Directory.Put(fleet.Server{ID: 1, OwnerIsRoot: true})
	f.control.SetUtilization(1, remote.Utilization{CPUPercent: 120})

	res, err := f.orch.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stopped != 0 || res.Suspended != 0 {
		t.Errorf("result = %+v, want root-owned server untouched", res)
	}
	if calls := f.control.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v", calls)
	}
}

func TestDisabledUnlessForced(t *testing.T) {
	f := newFixture(t, map[string]string{settings.ResourceEnabled: "false"})
	f.env.Directory.Put(fleet.Server{ID: 1})
	f.control.SetUtilization(1, remote.Utilization{CPUPercent: 10})
	ctx := context.Background()

	res, _ := f.orch.Run(ctx, Options{})
	if res.Checked != 0 {
		t.Errorf("disabled run checked %d servers", res.Checked)
	}
	res, _ = f.orch.Run(ctx, Options{Force: true})
	if res.Checked != 1 {
		t.Errorf("forced run checked %d servers, want 1", res.Checked)
	}
}
