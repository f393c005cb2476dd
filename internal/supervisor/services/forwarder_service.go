// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/logging"
)

// Subscriber is satisfied by *eventbus.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// NotificationForwarder delivers notifications published on the bus to a
// notifier such as the webhook. It keeps slow webhooks off the cycle path.
// Delivery is best effort: failed deliveries are logged and acked.
type NotificationForwarder struct {
	sub    Subscriber
	target eventbus.Notifier

	forwarded atomic.Int64
}

// NewNotificationForwarder creates a forwarder from sub to target.
func NewNotificationForwarder(sub Subscriber, target eventbus.Notifier) *NotificationForwarder {
	return &NotificationForwarder{sub: sub, target: target}
}

// Serve implements suture.Service. Transports without subscriptions stop
// the service permanently.
func (f *NotificationForwarder) Serve(ctx context.Context) error {
	msgs, err := f.sub.Subscribe(ctx, eventbus.TopicNotifications)
	if errors.Is(err, eventbus.ErrSubscribeUnsupported) {
		logging.Info().Msg("Notification forwarding disabled: transport has no subscriptions")
		return suture.ErrDoNotRestart
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", eventbus.TopicNotifications, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("notification subscription closed")
			}
			f.forward(ctx, msg)
		}
	}
}

func (f *NotificationForwarder) forward(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var note eventbus.Notification
	if err := json.Unmarshal(msg.Payload, &note); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable notification")
		return
	}
	if eventbus.Notify(ctx, f.target, note) {
		f.forwarded.Add(1)
	}
}

// Forwarded returns how many notifications reached the target.
func (f *NotificationForwarder) Forwarded() int64 { return f.forwarded.Load() }

// String implements fmt.Stringer.
func (f *NotificationForwarder) String() string {
	return "notification-forwarder"
}
