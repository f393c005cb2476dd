// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/sentinel/internal/metrics"
)

func TestDoReturnsTypedResult(t *testing.T) {
	t.Parallel()

	b := New("test-typed", DefaultSettings())
	got, err := Do(b, func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Errorf("Do = %d, %v; want 42, nil", got, err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	b := New("test-open", Settings{MinRequests: 3, FailureRatio: 0.5, Timeout: time.Hour})
	boom := errors.New("peer down")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want %v", i, err, boom)
		}
	}

	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if called {
		t.Error("fn must not run while the circuit is open")
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
}
