// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/testinfra"
)

// mockHTTPServer blocks in ListenAndServe until Shutdown is called.
type mockHTTPServer struct {
	listenErr error
	stop      chan struct{}
	once      sync.Once
	shutdowns atomic.Int32
}

func newMockHTTPServer(listenErr error) *mockHTTPServer {
	return &mockHTTPServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	m.once.Do(func() { close(m.stop) })
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer(nil)
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", srv.shutdowns.Load())
	}
}

func TestHTTPServerServiceListenError(t *testing.T) {
	svc := NewHTTPServerService(newMockHTTPServer(errors.New("address in use")), 0)
	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want listen error")
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s default", svc.shutdownTimeout)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestCycleServiceRunsImmediatelyAndOnTick(t *testing.T) {
	var calls atomic.Int32
	svc := NewCycleService("trust", 10*time.Millisecond, 0, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("run context has no deadline")
		}
		if calls.Add(1) == 2 {
			return errors.New("daemon offline")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want deadline exceeded", err)
	}

	if svc.Runs() < 3 {
		t.Errorf("Runs() = %d, want at least 3", svc.Runs())
	}
	if svc.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", svc.Failures())
	}
	if svc.String() != "cycle-trust" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestCycleServiceDisabled(t *testing.T) {
	svc := NewCycleService("reputation", 0, 0, func(context.Context) error {
		t.Error("disabled cycle ran")
		return nil
	})
	if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
	}
}

func TestNotificationForwarderDelivers(t *testing.T) {
	bus := eventbus.NewInProcess()
	t.Cleanup(func() { _ = bus.Close() })

	target := &testinfra.RecordingNotifier{}
	fwd := NewNotificationForwarder(bus, target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fwd.Serve(ctx) }()

	// Give the subscription time to register before publishing.
	time.Sleep(50 * time.Millisecond)
	pub := eventbus.NewBusNotifier(bus)
	for _, kind := range []string{"ddos_mitigation", "trust_lockdown"} {
		if err := pub.Notify(ctx, eventbus.Notification{Kind: kind, Title: kind, Severity: "high"}); err != nil {
			t.Fatalf("publish %s: %v", kind, err)
		}
	}
	if err := bus.PublishRaw(ctx, eventbus.TopicNotifications, []byte("not json"), nil); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fwd.Forwarded() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	kinds := target.Kinds()
	if len(kinds) != 2 || kinds[0] != "ddos_mitigation" || kinds[1] != "trust_lockdown" {
		t.Errorf("forwarded kinds = %v", kinds)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}

type unsupportedSubscriber struct{}

func (unsupportedSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, eventbus.ErrSubscribeUnsupported
}

func TestNotificationForwarderWithoutSubscriptions(t *testing.T) {
	fwd := NewNotificationForwarder(unsupportedSubscriber{}, eventbus.Discard{})
	if err := fwd.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
	}
}
