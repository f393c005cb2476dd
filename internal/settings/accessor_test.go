// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/sentinel/internal/cache"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("db offline")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("db offline") }
func (brokenStore) All(context.Context) (map[string]string, error) {
	return nil, errors.New("db offline")
}

func newTestAccessor(t *testing.T, initial map[string]string) (*Accessor, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(initial)
	a := NewAccessor(store, time.Minute, cache.WithSweepInterval(0))
	t.Cleanup(a.Close)
	return a, store
}

func TestDefaultsWhenAbsent(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccessor(t, nil)
	ctx := context.Background()

	if got := a.Int(ctx, DDoSBurstThreshold10s); got != 150 {
		t.Errorf("burst threshold default = %d, want 150", got)
	}
	if got := a.Float(ctx, AdaptiveAlpha); got != 0.05 {
		t.Errorf("alpha default = %v, want 0.05", got)
	}
	if !a.Bool(ctx, TrustEnabled) {
		t.Error("trust automation should default to enabled")
	}
	if got := a.Minutes(ctx, TrustQuarantineMinutes); got != 30*time.Minute {
		t.Errorf("quarantine minutes = %v, want 30m", got)
	}
}

func TestClampOnRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
		want  float64
	}{
		{"alpha above max", AdaptiveAlpha, "5", 0.8},
		{"alpha below min", AdaptiveAlpha, "0.001", 0.05},
		{"threshold below min", AdaptiveAnomalyThreshold, "0.5", 1.2},
		{"threshold above max", AdaptiveAnomalyThreshold, "99", 8.0},
		{"burst threshold floor", DDoSBurstThreshold10s, "3", 40},
		{"burst threshold ceiling", DDoSBurstThreshold10s, "5000", 800},
		{"garbage falls back to default", DDoSBurstThreshold10s, "lots", 150},
		{"NaN falls back to default", AdaptiveAlpha, "NaN", 0.05},
		{"in range unchanged", AdaptiveAlpha, "0.35", 0.35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _ := newTestAccessor(t, map[string]string{tt.key: tt.value})
			if got := a.Float(context.Background(), tt.key); got != tt.want {
				t.Errorf("Float(%s=%q) = %v, want %v", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestCacheAndInvalidation(t *testing.T) {
	t.Parallel()

	a, store := newTestAccessor(t, map[string]string{DDoSBurstThreshold10s: "200"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = a.Int(ctx, DDoSBurstThreshold10s)
	}
	if store.Reads() != 1 {
		t.Errorf("store reads = %d, want 1 (cached)", store.Reads())
	}

	// Out-of-band write is invisible until invalidated.
	_ = store.Set(ctx, DDoSBurstThreshold10s, "300")
	if got := a.Int(ctx, DDoSBurstThreshold10s); got != 200 {
		t.Errorf("cached value = %d, want 200", got)
	}
	a.Invalidate(DDoSBurstThreshold10s)
	if got := a.Int(ctx, DDoSBurstThreshold10s); got != 300 {
		t.Errorf("after Invalidate = %d, want 300", got)
	}

	// Writes through the accessor are visible immediately.
	if err := a.Set(ctx, DDoSBurstThreshold10s, "140"); err != nil {
		t.Fatal(err)
	}
	if got := a.Int(ctx, DDoSBurstThreshold10s); got != 140 {
		t.Errorf("after Set = %d, want 140", got)
	}
}

func TestSetRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccessor(t, nil)
	err := a.SetMany(context.Background(), map[string]string{DDoSProfile: "elevated", "no_such_key": "1"})
	if !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("err = %v, want ErrUnknownSetting", err)
	}
	if got := a.String(context.Background(), DDoSProfile); got != "normal" {
		t.Errorf("partial write happened: profile = %q", got)
	}
}

func TestStoreFailureDegradesToDefault(t *testing.T) {
	t.Parallel()

	a := NewAccessor(brokenStore{}, time.Minute, cache.WithSweepInterval(0))
	defer a.Close()

	if got := a.Int(context.Background(), TrustQuarantineThreshold); got != 30 {
		t.Errorf("quarantine threshold = %d, want default 30", got)
	}
}

func TestListAndBool(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccessor(t, map[string]string{
		DDoSWhitelist:        " 10.0.0.1 , ,192.168.0.0/16",
		DDoSChallengeEnabled: "on",
	})
	ctx := context.Background()

	list := a.List(ctx, DDoSWhitelist)
	if len(list) != 2 || list[0] != "10.0.0.1" || list[1] != "192.168.0.0/16" {
		t.Errorf("List = %v", list)
	}
	if !a.Bool(ctx, DDoSChallengeEnabled) {
		t.Error("\"on\" should parse as true")
	}
}

func TestCatalogBoundsAreConsistent(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccessor(t, nil)
	for key, d := range Catalog {
		if d.Kind != KindInt && d.Kind != KindFloat {
			continue
		}
		if d.Min > d.Max {
			t.Errorf("%s: min %v > max %v", key, d.Min, d.Max)
		}
		if v := a.Float(context.Background(), key); v < d.Min || v > d.Max {
			t.Errorf("%s: default %v outside [%v, %v]", key, v, d.Min, d.Max)
		}
	}
}
