// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Publisher fans recorded events out to live consumers. Publishing is
// best-effort: the Recorder logs and drops any error it returns.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// GeoResolver maps an IP to an ISO country code. Returning "" means unknown.
type GeoResolver interface {
	Country(ctx context.Context, ip string) string
}

// Recorder writes events to the Store, maintains risk snapshots, and
// forwards events to an optional Publisher.
type Recorder struct {
	store Store
	bus   Publisher
	geo   GeoResolver
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithPublisher attaches a best-effort publisher.
func WithPublisher(p Publisher) RecorderOption {
	return func(r *Recorder) { r.bus = p }
}

// WithGeoResolver attaches a country resolver used when the payload has none.
func WithGeoResolver(g GeoResolver) RecorderOption {
	return func(r *Recorder) { r.geo = g }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying event store for read paths.
func (r *Recorder) Store() Store {
	return r.store
}

// Now returns the recorder's clock reading.
func (r *Recorder) Now() time.Time {
	return r.now()
}

// Record appends an event. A missing risk level defaults to info. Store
// failures are returned; publish failures are not.
func (r *Recorder) Record(ctx context.Context, eventType string, p Payload) (*Event, error) {
	if eventType == "" {
		return nil, ErrEmptyEventType
	}

	risk := p.RiskLevel
	if !risk.Valid() {
		risk = RiskInfo
	}

	event := &Event{
		ID:          uuid.New().String(),
		ActorUserID: p.ActorUserID,
		ServerID:    p.ServerID,
		IP:          p.IP,
		EventType:   eventType,
		RiskLevel:   risk,
		Meta:        p.Meta,
		CreatedAt:   r.now().UTC(),
	}

	if err := r.store.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append %s event: %w", eventType, err)
	}
	metrics.EventsRecordedTotal.WithLabelValues(string(risk)).Inc()

	if event.IP != "" {
		country := p.Country
		if country == "" && r.geo != nil {
			country = r.geo.Country(ctx, event.IP)
		}
		if err := r.store.UpsertRiskSnapshot(ctx, event.IP, country, event.CreatedAt); err != nil {
			return event, fmt.Errorf("upsert risk snapshot for %s: %w", event.IP, err)
		}
	}

	r.publish(ctx, event)
	return event, nil
}

// publish forwards event to the bus, swallowing errors and panics.
func (r *Recorder) publish(ctx context.Context, event *Event) {
	if r.bus == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			metrics.BusPublishFailuresTotal.Inc()
			logging.Ctx(ctx).Warn().
				Interface("panic", rec).
				Str("event_type", event.EventType).
				Msg("Event publisher panicked; event kept in log")
		}
	}()
	if err := r.bus.Publish(ctx, event); err != nil {
		metrics.BusPublishFailuresTotal.Inc()
		logging.Ctx(ctx).Debug().
			Err(err).
			Str("event_type", event.EventType).
			Msg("Event publish failed; event kept in log")
	}
}
