// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package simulate writes synthetic attack traffic into the event log so
// operators can exercise detection and tuning end to end.
package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/validation"
)

// ErrUnknownSimulation is returned for unsupported simulation types.
var ErrUnknownSimulation = errors.New("simulate: unknown simulation type")

// Simulation types.
const (
	TypeBruteforce     = "bruteforce"
	TypeAPIAbuse       = "api_abuse"
	TypeBurst          = "burst"
	TypePrivEscalation = "priv_escalation"
)

// MaxIntensity bounds the number of events one simulation writes.
const MaxIntensity = 5000

// bruteforceHighAfter is the attempt index past which failures are high risk.
const bruteforceHighAfter = 20

type scenario struct {
	eventType string
	ip        string
	risk      func(attempt int) eventlog.RiskLevel
	meta      map[string]any
}

func fixed(r eventlog.RiskLevel) func(int) eventlog.RiskLevel {
	return func(int) eventlog.RiskLevel { return r }
}

// Documentation ranges (RFC 5737) only.
var scenarios = map[string]scenario{
	TypeBruteforce: {
		eventType: eventlog.TypeAuthFailed,
		ip:        "203.0.113.5",
		risk: func(attempt int) eventlog.RiskLevel {
			if attempt > bruteforceHighAfter {
				return eventlog.RiskHigh
			}
			return eventlog.RiskLow
		},
		meta: map[string]any{"username": "admin", "route": "/auth/login"},
	},
	TypeAPIAbuse: {
		eventType: eventlog.TypeRateLimited,
		ip:        "203.0.113.6",
		risk:      fixed(eventlog.RiskMedium),
		meta:      map[string]any{"route": "/api/client/servers"},
	},
	TypeBurst: {
		eventType: eventlog.TypeDDoSBurstBlocked,
		ip:        "203.0.113.7",
		risk:      fixed(eventlog.RiskHigh),
		meta:      map[string]any{"window_seconds": 10},
	},
	TypePrivEscalation: {
		eventType: eventlog.TypePrivEscalation,
		ip:        "203.0.113.8",
		risk:      fixed(eventlog.RiskCritical),
		meta:      map[string]any{"target": "root_admin"},
	},
}

// Request selects a simulation.
type Request struct {
	Type      string `json:"type" validate:"required"`
	Intensity int    `json:"intensity" validate:"gte=1,lte=5000"`
}

// Result summarizes a simulation.
type Result struct {
	Type      string `json:"type"`
	Intensity int    `json:"intensity"`
	IP        string `json:"ip"`
	Events    int    `json:"events"`
	HighRisk  int    `json:"high_risk"`
}

// Simulator writes synthetic events.
type Simulator struct {
	events *eventlog.Recorder
}

// New creates a Simulator.
func New(events *eventlog.Recorder) *Simulator {
	return &Simulator{events: events}
}

// Validate checks req without writing anything.
func Validate(req Request) error {
	if _, ok := scenarios[req.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSimulation, req.Type)
	}
	return validation.Struct(req)
}

// Run validates req and writes its events.
func (s *Simulator) Run(ctx context.Context, req Request) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}
	sc := scenarios[req.Type]
	res := Result{Type: req.Type, Intensity: req.Intensity, IP: sc.ip}

	for attempt := 1; attempt <= req.Intensity; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		risk := sc.risk(attempt)
		meta := make(map[string]any, len(sc.meta)+2)
		for k, v := range sc.meta {
			meta[k] = v
		}
		meta["simulated"] = true
		meta["attempt"] = attempt

		if _, err := s.events.Record(ctx, sc.eventType, eventlog.Payload{IP: sc.ip, RiskLevel: risk, Meta: meta}); err != nil {
			return res, fmt.Errorf("record %s event %d: %w", req.Type, attempt, err)
		}
		res.Events++
		if risk.AtLeast(eventlog.RiskHigh) {
			res.HighRisk++
		}
	}

	logging.Ctx(ctx).Info().
		Str("type", req.Type).
		Int("events", res.Events).
		Int("high_risk", res.HighRisk).
		Msg("Simulation complete")
	return res, nil
}
