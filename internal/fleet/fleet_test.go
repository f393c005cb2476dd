// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package fleet

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestComputeTrust(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                     string
		stability, uptime, abuse float64
		want                     float64
	}{
		{"perfect", 100, 100, 0, 100},
		{"all bad", 0, 0, 100, 0},
		{"abusive but stable", 100, 100, 100, 60},
		{"out of range inputs clamp", 150, -20, -5, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ComputeTrust(tt.stability, tt.uptime, tt.abuse); got != tt.want {
				t.Errorf("ComputeTrust = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEachServerPages(t *testing.T) {
	t.Parallel()

	dir := NewMemoryDirectory()
	for i := int64(1); i <= 7; i++ {
		dir.Put(Server{ID: i, OwnerID: 100 + i%2})
	}

	var seen []int64
	err := EachServer(context.Background(), dir, 3, func(s Server) error {
		seen = append(seen, s.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 7 || seen[0] != 1 || seen[6] != 7 {
		t.Errorf("visited %v", seen)
	}
}

func TestEachServerStopsOnError(t *testing.T) {
	t.Parallel()

	dir := NewMemoryDirectory(Server{ID: 1}, Server{ID: 2})
	stop := errors.New("stop")
	calls := 0
	err := EachServer(context.Background(), dir, 10, func(Server) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestMemoryDirectoryMutations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := NewMemoryDirectory(Server{ID: 1, OwnerID: 9}, Server{ID: 2, OwnerID: 9}, Server{ID: 3, OwnerID: 4})

	if err := dir.SetSuspended(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	if s, _ := dir.GetServer(ctx, 1); !s.Suspended {
		t.Error("server 1 should be suspended")
	}

	owned, _ := dir.ListServersByOwner(ctx, 9)
	if len(owned) != 2 {
		t.Errorf("owner 9 has %d servers, want 2", len(owned))
	}

	if err := dir.DeleteServer(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.GetServer(ctx, 2); !errors.Is(err, ErrServerNotFound) {
		t.Errorf("deleted server lookup err = %v", err)
	}
	if err := dir.DeleteUser(ctx, 9); err != nil || !dir.UserDeleted(9) {
		t.Errorf("DeleteUser err = %v", err)
	}
}

func TestMemoryReputationsRecalculate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reps := NewMemoryReputations(func() time.Time { return now },
		Reputation{ServerID: 5, Stability: 100, Uptime: 100, Abuse: 50, Trust: 99})

	r, err := reps.Recalculate(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if r.Trust != 80 || !r.CalculatedAt.Equal(now) {
		t.Errorf("recalculated = %+v", r)
	}
	if reps.Recalculations() != 1 {
		t.Errorf("recalculations = %d", reps.Recalculations())
	}
}

func TestLimitsCores(t *testing.T) {
	t.Parallel()

	if c := (Limits{CPUPercent: 400}).Cores(); c != 4 {
		t.Errorf("Cores(400) = %v", c)
	}
	if c := (Limits{}).Cores(); c != 1 {
		t.Errorf("Cores(0) = %v, want 1", c)
	}
}
