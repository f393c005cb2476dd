// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package app

import (
	"errors"
	"testing"

	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/eventbus"
)

func TestNotifierSelection(t *testing.T) {
	tests := []struct {
		name    string
		natsURL string
		fwd     bool
		want    string
	}{
		{"nats publishes and posts", "nats://127.0.0.1:4222", true, "multi"},
		{"in-process with forwarder", "", true, "bus"},
		{"in-process without forwarder", "", false, "webhook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.EventBus.NATSURL = tt.natsURL
			a := &App{
				Config:     cfg,
				Bus:        eventbus.NewInProcess(),
				Webhook:    eventbus.NewWebhookNotifier(eventbus.WebhookConfig{}),
				forwarding: tt.fwd && tt.natsURL == "",
			}
			defer a.Bus.Close()

			if got := a.notifier().Name(); got != tt.want {
				t.Errorf("notifier = %q, want %q", got, tt.want)
			}
			if a.ForwardsNotifications() != (tt.want == "bus") {
				t.Errorf("ForwardsNotifications() = %v", a.ForwardsNotifications())
			}
		})
	}
}

func TestCloseRunsInReverseAndJoinsErrors(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	a := &App{}
	a.onClose(func() error { order = append(order, 1); return nil })
	a.onClose(func() error { order = append(order, 2); return boom })
	a.onClose(func() error { order = append(order, 3); return nil })

	if err := a.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() = %v, want boom", err)
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("close order = %v, want [3 2 1]", order)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}
