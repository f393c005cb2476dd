// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package resource implements the resource safety orchestrator. Each cycle
// polls live utilization for every server, counts violations in a sliding
// window, and once the threshold is reached runs the enforcement ladder:
//
//	quarantine -> stop (kill on failure) -> suspend -> under_attack profile
//	-> ban owner IP -> delete server -> delete owner
//
// The steps per server run in the fixed order detect, count, gate, enforce.
// Every enforcement step is logged on its own and a failed step never
// aborts the ladder or the cycle.
package resource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/sentinel/internal/ddos"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/remote"
	"github.com/tomtom215/sentinel/internal/settings"
)

// Options select what Run evaluates.
type Options struct {
	ServerID *int64
	// Force runs even when resource safety is disabled. Cooldowns still apply.
	Force bool
}

// Result summarizes a run.
type Result struct {
	Checked         int `json:"checked"`
	Violations      int `json:"violations"`
	Enforced        int `json:"enforced"`
	Stopped         int `json:"stopped"`
	Suspended       int `json:"suspended"`
	DeletedServers  int `json:"deleted_servers"`
	DeletedUsers    int `json:"deleted_users"`
	PermanentIPBans int `json:"permanent_ip_bans"`
	Errors          int `json:"errors"`
}

func (r *Result) add(e *Enforcement) {
	r.Enforced++
	r.Stopped += b2i(e.Stopped)
	r.Suspended += b2i(e.Suspended)
	r.DeletedServers += e.DeletedServers
	r.DeletedUsers += e.DeletedUsers
	r.PermanentIPBans += e.IPBans
	r.Errors += e.Errors
}

// Orchestrator runs resource safety cycles.
type Orchestrator struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	store    kv.Store
	dir      fleet.Directory
	control  remote.ServerControl
	firewall remote.Firewall
	profiles *ddos.Profiles
	notifier eventbus.Notifier
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Settings *settings.Accessor
	Events   *eventlog.Recorder
	Store    kv.Store
	Dir      fleet.Directory
	Control  remote.ServerControl
	Firewall remote.Firewall
	Profiles *ddos.Profiles
	Notifier eventbus.Notifier
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		settings: d.Settings,
		events:   d.Events,
		store:    d.Store,
		dir:      d.Dir,
		control:  d.Control,
		firewall: d.Firewall,
		profiles: d.Profiles,
		notifier: d.Notifier,
	}
}

func violationsKey(id int64) string { return "rs:violations:" + strconv.FormatInt(id, 10) }

// Run evaluates one server or the whole fleet.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if !opts.Force && !o.settings.Bool(ctx, settings.ResourceEnabled) {
		logging.Ctx(ctx).Debug().Msg("Resource safety disabled")
		return res, nil
	}

	if opts.ServerID != nil {
		srv, err := o.dir.GetServer(ctx, *opts.ServerID)
		if err != nil {
			return res, fmt.Errorf("load server %d: %w", *opts.ServerID, err)
		}
		o.process(ctx, *srv, &res)
		return res, nil
	}

	err := fleet.EachServer(ctx, o.dir, o.settings.Int(ctx, settings.ResourcePageSize), func(srv fleet.Server) error {
		o.process(ctx, srv, &res)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk servers: %w", err)
	}

	logging.Ctx(ctx).Info().
		Int("checked", res.Checked).
		Int("violations", res.Violations).
		Int("enforced", res.Enforced).
		Int("errors", res.Errors).
		Msg("Resource safety cycle complete")
	return res, nil
}

// process runs detect, count, gate and enforce for one server.
func (o *Orchestrator) process(ctx context.Context, srv fleet.Server, res *Result) {
	if srv.Suspended {
		return
	}
	res.Checked++
	log := logging.Ctx(ctx).With().Int64("server_id", srv.ID).Logger()

	usage, err := o.control.Utilization(ctx, srv)
	if err != nil {
		res.Errors++
		metrics.CycleErrorsTotal.WithLabelValues("resource").Inc()
		log.Warn().Err(err).Msg("Utilization fetch failed")
		o.record(ctx, eventlog.TypeResourceStatsFailed, srv, eventlog.RiskHigh, map[string]any{"error": err.Error()})
		return
	}

	det, err := o.Detect(ctx, srv, *usage)
	if err != nil {
		res.Errors++
		log.Warn().Err(err).Msg("Violation detection failed")
		return
	}
	if len(det.Reasons) == 0 {
		return
	}

	count, err := o.Count(ctx, det)
	if err != nil {
		res.Errors++
		log.Warn().Err(err).Msg("Violation count failed")
		return
	}
	res.Violations++

	if !o.Gate(ctx, count) {
		return
	}

	enf := o.Enforce(ctx, det)
	res.add(enf)
}

// Count increments the sliding-window violation counter and logs the
// violation with its full context.
func (o *Orchestrator) Count(ctx context.Context, det *Detection) (int64, error) {
	window := o.settings.Seconds(ctx, settings.ResourceViolationWindowSeconds)
	count, err := o.store.Incr(ctx, violationsKey(det.Server.ID), window)
	if err != nil {
		return 0, fmt.Errorf("increment violations: %w", err)
	}

	meta := det.meta()
	meta["count"] = count
	meta["threshold"] = o.settings.Int(ctx, settings.ResourceViolationThreshold)
	meta["window_seconds"] = int(window / time.Second)
	o.record(ctx, eventlog.TypeResourceViolation, det.Server, eventlog.RiskHigh, meta)
	return count, nil
}

// Gate reports whether count reached the enforcement threshold.
func (o *Orchestrator) Gate(ctx context.Context, count int64) bool {
	return count >= int64(o.settings.Int(ctx, settings.ResourceViolationThreshold))
}

// record logs an event; failures to write are logged and dropped so one
// bad write does not stop the ladder.
func (o *Orchestrator) record(ctx context.Context, eventType string, srv fleet.Server, risk eventlog.RiskLevel, meta map[string]any) {
	if _, err := o.events.Record(ctx, eventType, eventlog.Payload{
		ServerID:    eventlog.Int64(srv.ID),
		ActorUserID: eventlog.Int64(srv.OwnerID),
		RiskLevel:   risk,
		Meta:        meta,
	}); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event_type", eventType).Int64("server_id", srv.ID).Msg("Failed to record event")
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
