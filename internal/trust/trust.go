// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package trust runs the trust automation loop: it reads each server's trust
// score and applies quarantine, the elevated DDoS profile, or a global
// lockdown when the score is low or falling fast.
package trust

import (
	"context"
	"errors"
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
	"github.com/tomtom215/sentinel/internal/policy"
	"github.com/tomtom215/sentinel/internal/settings"
)

// TTL store keys.
const (
	keyElevatedCooldown = "trust:elevated_profile"
	keyLockdownCooldown = "trust:lockdown"
	snapshotTTL         = 24 * time.Hour
)

// QuarantineKey is the TTL flag marking a server as quarantined. Access
// gates outside the engine read it through IsQuarantined.
func QuarantineKey(serverID int64) string {
	return "quarantine:server:" + strconv.FormatInt(serverID, 10)
}

func snapshotKey(serverID int64) string {
	return "trust:last:" + strconv.FormatInt(serverID, 10)
}

// IsQuarantined reports whether serverID currently carries a quarantine flag.
func IsQuarantined(ctx context.Context, store kv.Store, serverID int64) (bool, error) {
	_, ok, err := store.Get(ctx, QuarantineKey(serverID))
	return ok, err
}

// Quarantine sets the quarantine flag for d.
func Quarantine(ctx context.Context, store kv.Store, serverID int64, d time.Duration) error {
	return store.Set(ctx, QuarantineKey(serverID), "1", d)
}

// Snapshot is the last observed trust score of a server.
type Snapshot struct {
	Score float64   `json:"score"`
	At    time.Time `json:"at"`
}

// Options select what Run evaluates.
type Options struct {
	// ServerID restricts the run to one server.
	ServerID *int64
	// Force runs even when trust automation is disabled. Cooldowns still apply.
	Force bool
}

// Result summarizes a run.
type Result struct {
	Checked           int `json:"checked"`
	Recalculated      int `json:"recalculated"`
	ElevatedApplied   int `json:"elevated_applied"`
	Quarantined       int `json:"quarantined"`
	LockdownTriggered int `json:"lockdown_triggered"`
	Errors            int `json:"errors"`
}

// Loop is the trust automation loop.
type Loop struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	store    kv.Store
	dir      fleet.Directory
	reps     fleet.ReputationProvider
	profiles *ddos.Profiles
	notifier eventbus.Notifier
}

// NewLoop creates a Loop. notifier may be nil.
func NewLoop(
	s *settings.Accessor,
	events *eventlog.Recorder,
	store kv.Store,
	dir fleet.Directory,
	reps fleet.ReputationProvider,
	profiles *ddos.Profiles,
	notifier eventbus.Notifier,
) *Loop {
	return &Loop{
		settings: s,
		events:   events,
		store:    store,
		dir:      dir,
		reps:     reps,
		profiles: profiles,
		notifier: notifier,
	}
}

// Run evaluates one server or every server in the directory.
func (l *Loop) Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if !opts.Force && !l.settings.Bool(ctx, settings.TrustEnabled) {
		logging.Ctx(ctx).Debug().Msg("Trust automation disabled")
		return res, nil
	}

	if opts.ServerID != nil {
		srv, err := l.dir.GetServer(ctx, *opts.ServerID)
		if err != nil {
			return res, fmt.Errorf("load server %d: %w", *opts.ServerID, err)
		}
		l.check(ctx, *srv, &res)
		return res, nil
	}

	err := fleet.EachServer(ctx, l.dir, l.settings.Int(ctx, settings.TrustPageSize), func(srv fleet.Server) error {
		l.check(ctx, srv, &res)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk servers: %w", err)
	}

	logging.Ctx(ctx).Info().
		Int("checked", res.Checked).
		Int("quarantined", res.Quarantined).
		Int("elevated", res.ElevatedApplied).
		Int("lockdowns", res.LockdownTriggered).
		Int("errors", res.Errors).
		Msg("Trust automation cycle complete")
	return res, nil
}

// check evaluates one server and folds the outcome into res.
func (l *Loop) check(ctx context.Context, srv fleet.Server, res *Result) {
	res.Checked++
	out, err := l.Evaluate(ctx, srv)
	res.Recalculated += b2i(out.Recalculated)
	res.Quarantined += b2i(out.Quarantined)
	res.ElevatedApplied += b2i(out.ElevatedApplied)
	res.LockdownTriggered += b2i(out.LockdownTriggered)
	if err == nil {
		return
	}

	res.Errors++
	metrics.CycleErrorsTotal.WithLabelValues("trust").Inc()
	logging.Ctx(ctx).Warn().Err(err).Int64("server_id", srv.ID).Msg("Trust check failed")
	eventbus.BestEffort(ctx, "trust_check_failed", func(ctx context.Context) error {
		_, recErr := l.events.Record(ctx, eventlog.TypeTrustCheckFailed, eventlog.Payload{
			ServerID:  eventlog.Int64(srv.ID),
			RiskLevel: eventlog.RiskHigh,
			Meta:      map[string]any{"error": err.Error()},
		})
		return recErr
	})
}

// Outcome is what Evaluate did for one server.
type Outcome struct {
	Trust             float64 `json:"trust"`
	Recalculated      bool    `json:"recalculated"`
	Quarantined       bool    `json:"quarantined"`
	ElevatedApplied   bool    `json:"elevated_applied"`
	LockdownTriggered bool    `json:"lockdown_triggered"`
}

// Evaluate runs the trust rules for a single server.
func (l *Loop) Evaluate(ctx context.Context, srv fleet.Server) (Outcome, error) {
	var out Outcome

	rep, recalculated, err := l.reputation(ctx, srv.ID)
	if err != nil {
		return out, err
	}
	out.Recalculated = recalculated
	out.Trust = rep.Trust
	now := l.events.Now()

	// The snapshot is written whatever the actions did, so the next drop
	// check compares against this score.
	var actionErr error
	switch {
	case rep.Trust < float64(l.settings.Int(ctx, settings.TrustQuarantineThreshold)):
		out.Quarantined, actionErr = l.quarantine(ctx, srv, rep.Trust)
	case rep.Trust < float64(l.settings.Int(ctx, settings.TrustElevatedThreshold)):
		out.ElevatedApplied, actionErr = l.elevate(ctx, srv, rep.Trust)
	}

	out.LockdownTriggered, err = l.detectDrop(ctx, srv, rep.Trust, now)
	errs := []error{actionErr, err}

	if err := kv.SetJSON(ctx, l.store, snapshotKey(srv.ID), Snapshot{Score: rep.Trust, At: now}, snapshotTTL); err != nil {
		errs = append(errs, fmt.Errorf("save trust snapshot: %w", err))
	}
	return out, errors.Join(errs...)
}

// releaseCooldown frees a cooldown claimed for an action that then failed,
// so the next cycle can retry it.
func (l *Loop) releaseCooldown(ctx context.Context, key string) {
	if err := l.store.Delete(ctx, key); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to release trust cooldown")
	}
}

// reputation returns a fresh reputation, recalculating missing or stale rows.
func (l *Loop) reputation(ctx context.Context, serverID int64) (*fleet.Reputation, bool, error) {
	rep, err := l.reps.GetReputation(ctx, serverID)
	if err != nil && !errors.Is(err, fleet.ErrServerNotFound) {
		return nil, false, fmt.Errorf("read reputation: %w", err)
	}

	stale := l.settings.Minutes(ctx, settings.TrustStaleMinutes)
	if rep != nil && l.events.Now().Sub(rep.CalculatedAt) <= stale {
		return rep, false, nil
	}

	rep, err = l.reps.Recalculate(ctx, serverID)
	if err != nil {
		return nil, false, fmt.Errorf("recalculate reputation: %w", err)
	}
	metrics.TrustActionsTotal.WithLabelValues("recalculate").Inc()
	return rep, true, nil
}

func (l *Loop) quarantine(ctx context.Context, srv fleet.Server, score float64) (bool, error) {
	if d := policy.Evaluate(policy.Request{Action: policy.ActionQuarantine, OwnerIsRoot: srv.OwnerIsRoot}); !d.Allowed {
		logging.Ctx(ctx).Info().Int64("server_id", srv.ID).Str("reason", d.Reason).Msg("Trust quarantine refused by policy")
		return false, nil
	}

	minutes := l.settings.Minutes(ctx, settings.TrustQuarantineMinutes)
	if err := Quarantine(ctx, l.store, srv.ID, minutes); err != nil {
		return false, fmt.Errorf("set quarantine flag: %w", err)
	}
	metrics.TrustActionsTotal.WithLabelValues("quarantine").Inc()

	_, err := l.events.Record(ctx, eventlog.TypeTrustQuarantine, eventlog.Payload{
		ServerID:  eventlog.Int64(srv.ID),
		RiskLevel: eventlog.RiskCritical,
		Meta: map[string]any{
			"trust_score":      score,
			"threshold":        l.settings.Int(ctx, settings.TrustQuarantineThreshold),
			"duration_minutes": int(minutes / time.Minute),
		},
	})
	return true, err
}

func (l *Loop) elevate(ctx context.Context, srv fleet.Server, score float64) (bool, error) {
	cooldown := l.settings.Minutes(ctx, settings.TrustProfileCooldownMin)
	acquired, err := l.store.SetNX(ctx, keyElevatedCooldown, strconv.FormatInt(srv.ID, 10), cooldown)
	if err != nil {
		return false, fmt.Errorf("acquire elevated cooldown: %w", err)
	}
	if !acquired {
		return false, nil
	}

	// Never downgrade an active lockdown.
	if l.settings.String(ctx, settings.DDoSProfile) == ddos.ProfileUnderAttack {
		logging.Ctx(ctx).Debug().Int64("server_id", srv.ID).Msg("Under-attack profile active; elevated profile skipped")
		return false, nil
	}

	if _, err := l.profiles.Apply(ctx, ddos.ProfileElevated, nil, false); err != nil {
		l.releaseCooldown(ctx, keyElevatedCooldown)
		return false, fmt.Errorf("apply elevated profile: %w", err)
	}
	metrics.TrustActionsTotal.WithLabelValues("elevated_profile").Inc()

	_, err = l.events.Record(ctx, eventlog.TypeTrustElevatedProfile, eventlog.Payload{
		ServerID:  eventlog.Int64(srv.ID),
		RiskLevel: eventlog.RiskHigh,
		Meta: map[string]any{
			"trust_score": score,
			"threshold":   l.settings.Int(ctx, settings.TrustElevatedThreshold),
		},
	})
	return true, err
}

// detectDrop triggers lockdown when the score fell by at least the drop
// threshold since a snapshot taken inside the drop window.
func (l *Loop) detectDrop(ctx context.Context, srv fleet.Server, score float64, now time.Time) (bool, error) {
	var prev Snapshot
	found, err := kv.GetJSON(ctx, l.store, snapshotKey(srv.ID), &prev)
	if err != nil {
		return false, fmt.Errorf("read trust snapshot: %w", err)
	}
	if !found || now.Sub(prev.At) > l.settings.Minutes(ctx, settings.TrustDropWindowMinutes) {
		return false, nil
	}

	drop := prev.Score - score
	if drop < float64(l.settings.Int(ctx, settings.TrustDropThreshold)) {
		return false, nil
	}

	cooldown := l.settings.Minutes(ctx, settings.TrustLockdownCooldownMin)
	acquired, err := l.store.SetNX(ctx, keyLockdownCooldown, strconv.FormatInt(srv.ID, 10), cooldown)
	if err != nil {
		return false, fmt.Errorf("acquire lockdown cooldown: %w", err)
	}
	if !acquired {
		return false, nil
	}

	if err := l.lockdown(ctx, srv, prev.Score, score); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loop) lockdown(ctx context.Context, srv fleet.Server, before, after float64) error {
	if err := l.settings.SetMany(ctx, map[string]string{
		settings.SecurityEmergencyMode:      "true",
		settings.SecurityRegistrationLocked: "true",
		settings.SecurityAPIWriteLocked:     "true",
		settings.ProgressiveSecurityMode:    "lockdown",
	}); err != nil {
		l.releaseCooldown(ctx, keyLockdownCooldown)
		return fmt.Errorf("enable emergency settings: %w", err)
	}
	if _, err := l.profiles.Apply(ctx, ddos.ProfileUnderAttack, nil, true); err != nil {
		l.releaseCooldown(ctx, keyLockdownCooldown)
		return fmt.Errorf("apply under_attack profile: %w", err)
	}
	metrics.TrustActionsTotal.WithLabelValues("lockdown").Inc()

	logging.Ctx(ctx).Warn().
		Int64("server_id", srv.ID).
		Float64("before", before).
		Float64("after", after).
		Msg("Trust drop triggered lockdown")

	if _, err := l.events.Record(ctx, eventlog.TypeTrustLockdown, eventlog.Payload{
		ServerID:  eventlog.Int64(srv.ID),
		RiskLevel: eventlog.RiskCritical,
		Meta: map[string]any{
			"previous_score": before,
			"trust_score":    after,
			"drop":           before - after,
		},
	}); err != nil {
		return err
	}

	eventbus.Notify(ctx, l.notifier, eventbus.Notification{
		Kind:     eventlog.TypeTrustLockdown,
		Title:    "Security lockdown engaged",
		Message:  fmt.Sprintf("Trust of server %d dropped from %.0f to %.0f", srv.ID, before, after),
		Severity: string(eventlog.RiskCritical),
		Meta:     map[string]any{"server_id": srv.ID},
	})
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
