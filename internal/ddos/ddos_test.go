// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package ddos

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/testinfra"
)

func TestNextThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current int
		count   int64
		want    int
	}{
		{"heavy pressure tightens", 150, 100, 140},
		{"tighten floors at 40", 45, 500, 40},
		{"already at floor", 40, 1000, 40},
		{"quiet relaxes", 150, 8, 155},
		{"relax caps at 800", 798, 0, 800},
		{"already at cap", 800, 0, 800},
		{"middle band is a fixed point", 150, 50, 150},
		{"just above relax band", 150, 9, 150},
		{"just below tighten band", 150, 99, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextThreshold(tt.current, tt.count); got != tt.want {
				t.Errorf("NextThreshold(%d, %d) = %d, want %d", tt.current, tt.count, got, tt.want)
			}
		})
	}
}

func TestTuneTightensUnderPressure(t *testing.T) {
	env := testinfra.NewEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		if _, err := env.Recorder.Record(ctx, eventlog.TypeRateLimited, eventlog.Payload{IP: "198.51.100.7"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tuner := NewTuner(env.Settings, env.Recorder, env.Notifier)
	got, err := tuner.Tune(ctx)
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if got != 140 {
		t.Errorf("threshold = %d, want 140", got)
	}
	if stored := env.Settings.Int(ctx, settings.DDoSBurstThreshold10s); stored != 140 {
		t.Errorf("stored threshold = %d, want 140", stored)
	}

	tuned := env.EventsOfType(t, eventlog.TypeDDoSThresholdTuned)
	if len(tuned) != 1 {
		t.Fatalf("tuned events = %d, want 1", len(tuned))
	}
	if tuned[0].Meta["old"] != 150 || tuned[0].Meta["new"] != 140 {
		t.Errorf("meta = %v", tuned[0].Meta)
	}
	if kinds := env.Notifier.Kinds(); len(kinds) != 1 {
		t.Errorf("notifications = %v, want one", kinds)
	}
}

func TestTuneIgnoresOldEvents(t *testing.T) {
	env := testinfra.NewEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		_, _ = env.Recorder.Record(ctx, eventlog.TypeDDoSBurstBlocked, eventlog.Payload{})
	}
	env.Clock.Advance(31 * time.Minute)

	got, err := NewTuner(env.Settings, env.Recorder, nil).Tune(ctx)
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if got != 155 {
		t.Errorf("threshold = %d, want 155 (old events outside window)", got)
	}
}

func TestTuneDisabled(t *testing.T) {
	env := testinfra.NewEnv(t, map[string]string{settings.DDoSAutoTuneEnabled: "false"})

	got, err := NewTuner(env.Settings, env.Recorder, nil).Tune(context.Background())
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if got != 150 {
		t.Errorf("threshold = %d, want 150", got)
	}
	if n := len(env.EventsOfType(t, eventlog.TypeDDoSThresholdTuned)); n != 0 {
		t.Errorf("tuned events = %d, want 0", n)
	}
}

func TestApplyUnderAttackMergesWhitelist(t *testing.T) {
	env := testinfra.NewEnv(t, map[string]string{settings.DDoSWhitelist: "10.0.0.0/8, not-an-ip"})
	ctx := context.Background()

	p := NewProfiles(env.Settings, env.Recorder, env.Notifier)
	res, err := p.Apply(ctx, ProfileUnderAttack, []string{"203.0.113.10"}, true)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []string{"10.0.0.0/8", "127.0.0.1", "203.0.113.10", "::1"}
	if !reflect.DeepEqual(res.Whitelist, want) {
		t.Errorf("whitelist = %v, want %v", res.Whitelist, want)
	}
	if got := env.Settings.Int(ctx, settings.DDoSRateLimitPerMin); got != 120 {
		t.Errorf("rate limit = %d, want 120", got)
	}
	if got := env.Settings.Int(ctx, settings.DDoSBurstThreshold10s); got != 40 {
		t.Errorf("burst = %d, want 40", got)
	}
	if !env.Settings.Bool(ctx, settings.DDoSChallengeEnabled) {
		t.Error("challenge should be enabled")
	}
	if got := env.Settings.String(ctx, settings.DDoSProfile); got != ProfileUnderAttack {
		t.Errorf("profile = %q", got)
	}
	if n := len(env.EventsOfType(t, eventlog.TypeDDoSProfileApplied)); n != 1 {
		t.Errorf("applied events = %d, want 1", n)
	}
}

func TestApplyRejectsBadInputWithoutWriting(t *testing.T) {
	env := testinfra.NewEnv(t, nil)
	ctx := context.Background()
	p := NewProfiles(env.Settings, env.Recorder, nil)

	if _, err := p.Apply(ctx, "panic_mode", nil, false); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("err = %v, want ErrUnknownProfile", err)
	}
	if _, err := p.Apply(ctx, ProfileUnderAttack, []string{"1.2.3.4", "300.1.1.1"}, true); !errors.Is(err, ErrInvalidWhitelistEntry) {
		t.Errorf("err = %v, want ErrInvalidWhitelistEntry", err)
	}

	if got := env.Settings.String(ctx, settings.DDoSProfile); got != ProfileNormal {
		t.Errorf("profile = %q, want untouched normal", got)
	}
	if n := len(env.EventsOfType(t, eventlog.TypeDDoSProfileApplied)); n != 0 {
		t.Errorf("applied events = %d, want 0", n)
	}
}

func TestApplySameProfileWithoutForceIsNoop(t *testing.T) {
	env := testinfra.NewEnv(t, nil)
	ctx := context.Background()
	p := NewProfiles(env.Settings, env.Recorder, nil)

	if _, err := p.Apply(ctx, ProfileElevated, nil, false); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	res, err := p.Apply(ctx, ProfileElevated, nil, false)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if res.Changed {
		t.Error("re-applying the active profile without force should not change anything")
	}
	if n := len(env.EventsOfType(t, eventlog.TypeDDoSProfileApplied)); n != 1 {
		t.Errorf("applied events = %d, want 1", n)
	}

	res, err = p.Apply(ctx, ProfileElevated, nil, true)
	if err != nil || !res.Changed {
		t.Errorf("forced Apply = %+v, %v; want changed", res, err)
	}
}
