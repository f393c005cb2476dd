// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package eventbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Notification is an operator-facing message about an automated action.
type Notification struct {
	Kind     string         `json:"kind"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Notifier delivers notifications.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// BusNotifier publishes notifications on TopicNotifications.
type BusNotifier struct {
	bus *Bus
}

// NewBusNotifier creates a notifier over bus.
func NewBusNotifier(bus *Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// Name returns the notifier name.
func (n *BusNotifier) Name() string { return "bus" }

// Notify publishes n.
func (n *BusNotifier) Notify(ctx context.Context, note Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.bus.PublishRaw(ctx, TopicNotifications, data, map[string]string{
		"kind":     note.Kind,
		"severity": note.Severity,
	})
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL       string            `koanf:"url"`
	Headers   map[string]string `koanf:"headers"`
	RateLimit time.Duration     `koanf:"rate_limit"`
	Timeout   time.Duration     `koanf:"timeout"`
}

// webhookPayload is the JSON body posted to the webhook endpoint.
type webhookPayload struct {
	Notification Notification `json:"notification"`
	Timestamp    time.Time    `json:"timestamp"`
	Source       string       `json:"source"`
}

// WebhookNotifier posts notifications to an HTTP endpoint.
type WebhookNotifier struct {
	url       string
	headers   map[string]string
	client    *http.Client
	rateLimit time.Duration

	mu       sync.Mutex
	lastSent time.Time
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &WebhookNotifier{
		url:       cfg.URL,
		headers:   headers,
		rateLimit: cfg.RateLimit,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify posts note. Calls closer together than the rate limit wait.
func (n *WebhookNotifier) Notify(ctx context.Context, note Notification) error {
	if n.url == "" {
		return nil
	}

	n.mu.Lock()
	wait := n.rateLimit - time.Since(n.lastSent)
	n.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	body, err := json.Marshal(webhookPayload{
		Notification: note,
		Timestamp:    time.Now().UTC(),
		Source:       "sentinel",
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	n.mu.Lock()
	n.lastSent = time.Now()
	n.mu.Unlock()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiNotifier sends to every notifier and joins their errors.
type MultiNotifier []Notifier

// Name returns the notifier name.
func (m MultiNotifier) Name() string { return "multi" }

// Notify delivers note to all notifiers.
func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops notifications.
type Discard struct{}

// Name returns the notifier name.
func (Discard) Name() string { return "discard" }

// Notify does nothing.
func (Discard) Notify(context.Context, Notification) error { return nil }
