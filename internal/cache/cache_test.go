// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCacheGetSet(t *testing.T) {
	t.Parallel()

	c := New[string](time.Minute, WithSweepInterval(0))
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get(k) = %q, %v; want v, true", got, ok)
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Keys != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int](30*time.Second, WithClock(clock.Now), WithSweepInterval(0))
	defer c.Close()

	c.Set("a", 1)
	clock.Advance(29 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired early")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should expire at its TTL")
	}
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()

	c := New[int](time.Minute, WithSweepInterval(0))
	defer c.Close()

	c.Set("setting:a", 1)
	c.Set("setting:b", 2)
	c.Set("other", 3)

	c.Delete("other")
	if _, ok := c.Get("other"); ok {
		t.Error("Delete did not remove key")
	}

	if n := c.DeletePrefix("setting:"); n != 2 {
		t.Errorf("DeletePrefix removed %d, want 2", n)
	}
	if c.GetStats().Keys != 0 {
		t.Errorf("expected empty cache, got %d keys", c.GetStats().Keys)
	}
}

func TestCacheSweep(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int](time.Second, WithClock(clock.Now), WithSweepInterval(0))
	defer c.Close()

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)
	clock.Advance(2 * time.Second)
	c.sweep()

	if keys := c.GetStats().Keys; keys != 1 {
		t.Errorf("sweep left %d keys, want 1", keys)
	}
}
