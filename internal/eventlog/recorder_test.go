// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingPublisher struct {
	calls int
	panic bool
}

func (p *failingPublisher) Publish(context.Context, *Event) error {
	p.calls++
	if p.panic {
		panic("bus exploded")
	}
	return errors.New("bus unavailable")
}

type staticGeo string

func (g staticGeo) Country(context.Context, string) string { return string(g) }

func TestRecordDefaultsRiskToInfo(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	r := NewRecorder(store)

	e, err := r.Record(context.Background(), "custom_event", Payload{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.RiskLevel != RiskInfo {
		t.Errorf("risk = %q, want info", e.RiskLevel)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("event missing id or timestamp: %+v", e)
	}
}

func TestRecordRejectsEmptyType(t *testing.T) {
	t.Parallel()

	r := NewRecorder(NewMemoryStore(0))
	if _, err := r.Record(context.Background(), "", Payload{}); !errors.Is(err, ErrEmptyEventType) {
		t.Errorf("err = %v, want ErrEmptyEventType", err)
	}
}

func TestRecordSwallowsPublisherFailures(t *testing.T) {
	t.Parallel()

	for _, panics := range []bool{false, true} {
		store := NewMemoryStore(0)
		pub := &failingPublisher{panic: panics}
		r := NewRecorder(store, WithPublisher(pub))

		if _, err := r.Record(context.Background(), TypeAuthFailed, Payload{RiskLevel: RiskLow}); err != nil {
			t.Fatalf("Record with broken publisher (panic=%v): %v", panics, err)
		}
		if pub.calls != 1 {
			t.Errorf("publisher calls = %d, want 1", pub.calls)
		}
		if store.Len() != 1 {
			t.Errorf("stored events = %d, want 1", store.Len())
		}
	}
}

func TestRiskSnapshotUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(0)
	r := NewRecorder(store, WithClock(func() time.Time { return now }))

	if _, err := r.Record(ctx, TypeAuthFailed, Payload{IP: "203.0.113.5", Country: "NL"}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)
	if _, err := r.Record(ctx, TypeAuthFailed, Payload{IP: "203.0.113.5", Country: "US"}); err != nil {
		t.Fatal(err)
	}

	snap, err := store.GetRiskSnapshot(ctx, "203.0.113.5")
	if err != nil {
		t.Fatalf("GetRiskSnapshot: %v", err)
	}
	if snap.GeoCountry != "NL" {
		t.Errorf("country = %q, want NL (never overwritten)", snap.GeoCountry)
	}
	if !snap.LastSeenAt.Equal(now) {
		t.Errorf("last_seen_at = %v, want %v", snap.LastSeenAt, now)
	}
}

func TestRiskSnapshotFillsCountryFromResolver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(0)

	// First sighting without any country information.
	if _, err := NewRecorder(store).Record(ctx, TypeAuthFailed, Payload{IP: "198.51.100.7"}); err != nil {
		t.Fatal(err)
	}
	r := NewRecorder(store, WithGeoResolver(staticGeo("DE")))
	if _, err := r.Record(ctx, TypeAuthFailed, Payload{IP: "198.51.100.7"}); err != nil {
		t.Fatal(err)
	}

	snap, _ := store.GetRiskSnapshot(ctx, "198.51.100.7")
	if snap.GeoCountry != "DE" {
		t.Errorf("country = %q, want DE filled once known", snap.GeoCountry)
	}
}

func TestNoSnapshotWithoutIP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(0)
	r := NewRecorder(store)
	if _, err := r.Record(ctx, TypeTrustAnomaly, Payload{ServerID: Int64(1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetRiskSnapshot(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unexpected snapshot for empty identifier: %v", err)
	}
}
