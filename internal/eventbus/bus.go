// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package eventbus fans security events and operator notifications out to
// live consumers. Delivery is best-effort: the event log is the durable
// record, the bus is only a live feed.
//
// Two transports are supported:
//   - an in-process Watermill GoChannel (default, also used by tests)
//   - core NATS through watermill-nats when a URL is configured
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/sentinel/internal/breaker"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
)

// Topics.
const (
	TopicSecurityEvents = "sentinel.security_events"
	TopicNotifications  = "sentinel.notifications"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("eventbus: closed")

	// ErrSubscribeUnsupported is returned by Subscribe on publish-only transports.
	ErrSubscribeUnsupported = errors.New("eventbus: transport does not support subscribe")
)

// Config selects and tunes the transport.
type Config struct {
	// NATSURL enables the NATS transport. Empty means in-process only.
	NATSURL        string        `koanf:"nats_url"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	BufferSize     int64         `koanf:"buffer_size"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// DefaultConfig returns the in-process configuration.
func DefaultConfig() Config {
	return Config{
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		BufferSize:     256,
		PublishTimeout: 5 * time.Second,
	}
}

// Bus publishes events on a Watermill publisher.
type Bus struct {
	pub     message.Publisher
	sub     message.Subscriber
	breaker *breaker.Breaker
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// New builds a Bus for cfg.
func New(cfg Config) (*Bus, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	if cfg.NATSURL == "" {
		return newInProcess(cfg, logger), nil
	}
	return newNATS(cfg, logger)
}

// NewInProcess returns a GoChannel-backed bus.
func NewInProcess() *Bus {
	return newInProcess(DefaultConfig(), watermill.NewSlogLogger(logging.NewSlogLogger()))
}

func newInProcess(cfg Config, logger watermill.LoggerAdapter) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, logger)
	return &Bus{pub: ch, sub: ch, timeout: cfg.PublishTimeout}
}

func newNATS(cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	return &Bus{
		pub:     pub,
		breaker: breaker.New("eventbus-nats", breaker.DefaultSettings()),
		timeout: cfg.PublishTimeout,
	}, nil
}

// Publish serializes event onto TopicSecurityEvents. It satisfies
// eventlog.Publisher.
func (b *Bus) Publish(ctx context.Context, event *eventlog.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(event.ID, data)
	msg.Metadata.Set("event_type", event.EventType)
	msg.Metadata.Set("risk_level", string(event.RiskLevel))
	return b.publish(ctx, TopicSecurityEvents, msg)
}

// PublishRaw publishes payload on topic with the given metadata.
func (b *Bus) PublishRaw(ctx context.Context, topic string, payload []byte, meta map[string]string) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	for k, v := range meta {
		msg.Metadata.Set(k, v)
	}
	return b.publish(ctx, topic, msg)
}

func (b *Bus) publish(ctx context.Context, topic string, msg *message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	msg.SetContext(pubCtx)

	if b.breaker == nil {
		return b.pub.Publish(topic, msg)
	}
	return b.breaker.Execute(func() error {
		return b.pub.Publish(topic, msg)
	})
}

// Subscribe returns a live feed of topic. Only the in-process transport
// supports subscriptions; consumers of the NATS subject subscribe directly.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b.sub == nil {
		return nil, ErrSubscribeUnsupported
	}
	return b.sub.Subscribe(ctx, topic)
}

// Close shuts the transport down. Safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pub.Close()
}

// DecodeEvent unmarshals a security event message.
func DecodeEvent(msg *message.Message) (*eventlog.Event, error) {
	var event eventlog.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return &event, nil
}
