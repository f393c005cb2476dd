// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package testinfra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/sentinel/internal/cache"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/settings"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env bundles in-memory collaborators for cycle tests.
type Env struct {
	Clock         *Clock
	SettingsStore *settings.MemoryStore
	Settings      *settings.Accessor
	Events        *eventlog.MemoryStore
	Recorder      *eventlog.Recorder
	KV            *kv.MemoryStore
	Directory     *fleet.MemoryDirectory
	Reputations   *fleet.MemoryReputations
	Notifier      *RecordingNotifier
}

// NewEnv builds an Env seeded with initial settings.
func NewEnv(t *testing.T, initial map[string]string) *Env {
	t.Helper()

	clock := NewClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	store := settings.NewMemoryStore(initial)
	accessor := settings.NewAccessor(store, time.Minute, cache.WithSweepInterval(0))
	t.Cleanup(accessor.Close)

	events := eventlog.NewMemoryStore(0)
	kvStore := kv.NewMemoryStoreWithClock(clock.Now)
	t.Cleanup(func() { _ = kvStore.Close() })

	return &Env{
		Clock:         clock,
		SettingsStore: store,
		Settings:      accessor,
		Events:        events,
		Recorder:      eventlog.NewRecorder(events, eventlog.WithClock(clock.Now)),
		KV:            kvStore,
		Directory:     fleet.NewMemoryDirectory(),
		Reputations:   fleet.NewMemoryReputations(clock.Now),
		Notifier:      &RecordingNotifier{},
	}
}

// EventsOfType returns every recorded event of eventType, newest first.
func (e *Env) EventsOfType(t *testing.T, eventType string) []*eventlog.Event {
	t.Helper()
	events, err := e.Events.Query(context.Background(), eventlog.Filter{Types: []string{eventType}})
	if err != nil {
		t.Fatalf("query %s events: %v", eventType, err)
	}
	return events
}

// RecordingNotifier captures notifications.
type RecordingNotifier struct {
	mu    sync.Mutex
	notes []eventbus.Notification
}

// Name returns the notifier name.
func (n *RecordingNotifier) Name() string { return "recording" }

// Notify records note.
func (n *RecordingNotifier) Notify(_ context.Context, note eventbus.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

// Kinds returns the kinds of every notification received, in order.
func (n *RecordingNotifier) Kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notes))
	for i, note := range n.notes {
		out[i] = note.Kind
	}
	return out
}
