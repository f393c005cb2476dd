// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/sentinel/internal/ddos"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/policy"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/trust"
)

// Step outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeDenied  = "denied"
	OutcomeSkipped = "skipped"
)

// StepResult is the outcome of one rung of the ladder.
type StepResult struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Enforcement is the report of one Enforce call.
type Enforcement struct {
	Steps          []StepResult `json:"steps"`
	Stopped        bool         `json:"stopped"`
	Suspended      bool         `json:"suspended"`
	DeletedServers int          `json:"deleted_servers"`
	DeletedUsers   int          `json:"deleted_users"`
	IPBans         int          `json:"permanent_ip_bans"`
	Errors         int          `json:"errors"`
}

// Outcome returns the outcome recorded for step, or "".
func (e *Enforcement) Outcome(step string) string {
	for _, s := range e.Steps {
		if s.Step == step {
			return s.Outcome
		}
	}
	return ""
}

// PermanentPolicy loads the permanent-action switches from settings.
func PermanentPolicy(ctx context.Context, s *settings.Accessor) policy.Permanent {
	return policy.Permanent{
		Enabled:         s.Bool(ctx, settings.ResourcePermanentEnabled),
		OnlyOnStorage:   s.Bool(ctx, settings.ResourcePermanentOnlyStorage),
		ForceOnCPUSuper: s.Bool(ctx, settings.ResourceForcePermanentOnCPUSuper),
		BanIP:           s.Bool(ctx, settings.ResourcePermanentBanIP),
		DeleteServer:    s.Bool(ctx, settings.ResourcePermanentDeleteServer),
		DeleteOwner:     s.Bool(ctx, settings.ResourcePermanentDeleteOwner),
	}
}

// ladder carries the state of one Enforce call.
type ladder struct {
	o    *Orchestrator
	det  *Detection
	perm policy.Permanent
	rep  *Enforcement
}

// step evaluates policy for action and, when allowed, runs fn. The outcome
// is logged as its own event and counted.
func (l *ladder) step(ctx context.Context, action policy.Action, fn func(context.Context) (string, error)) bool {
	d := policy.Evaluate(policy.Request{
		Action:      action,
		OwnerIsRoot: l.det.Server.OwnerIsRoot,
		Reasons:     l.det.Reasons,
		Permanent:   l.perm,
	})
	if !d.Allowed {
		l.finish(ctx, StepResult{Step: string(action), Outcome: OutcomeDenied, Detail: d.Reason})
		return false
	}

	detail, err := fn(ctx)
	if err != nil {
		l.rep.Errors++
		l.finish(ctx, StepResult{Step: string(action), Outcome: OutcomeFailed, Detail: err.Error()})
		return false
	}
	l.finish(ctx, StepResult{Step: string(action), Outcome: OutcomeOK, Detail: detail})
	return true
}

func (l *ladder) skip(ctx context.Context, action policy.Action, why string) {
	l.finish(ctx, StepResult{Step: string(action), Outcome: OutcomeSkipped, Detail: why})
}

func (l *ladder) finish(ctx context.Context, r StepResult) {
	l.rep.Steps = append(l.rep.Steps, r)
	metrics.RecordEnforcementStep(r.Step, r.Outcome)

	risk := eventlog.RiskMedium
	if r.Outcome == OutcomeFailed {
		risk = eventlog.RiskHigh
	}
	l.o.record(ctx, eventlog.TypeResourceEnforceStep, l.det.Server, risk, map[string]any{
		"step":    r.Step,
		"outcome": r.Outcome,
		"detail":  r.Detail,
		"reasons": l.det.Reasons,
	})
}

// Enforce runs the enforcement ladder for det and clears the violation
// counter afterwards.
func (o *Orchestrator) Enforce(ctx context.Context, det *Detection) *Enforcement {
	l := &ladder{o: o, det: det, perm: PermanentPolicy(ctx, o.settings), rep: &Enforcement{}}
	srv := det.Server

	logging.Ctx(ctx).Warn().
		Int64("server_id", srv.ID).
		Strs("reasons", det.Reasons).
		Msg("Enforcing resource safety")

	l.step(ctx, policy.ActionQuarantine, func(ctx context.Context) (string, error) {
		d := o.settings.Minutes(ctx, settings.ResourceQuarantineMinutes)
		return d.String(), trust.Quarantine(ctx, o.store, srv.ID, d)
	})

	stopped := l.step(ctx, policy.ActionStop, func(ctx context.Context) (string, error) {
		return "", o.control.Stop(ctx, srv)
	})
	if !stopped && l.rep.Outcome(string(policy.ActionStop)) == OutcomeFailed {
		stopped = l.step(ctx, policy.ActionKill, func(ctx context.Context) (string, error) {
			return "graceful stop failed", o.control.Kill(ctx, srv)
		})
	}
	l.rep.Stopped = stopped

	if o.settings.Bool(ctx, settings.ResourceSuspendOnEnforce) {
		l.rep.Suspended = l.step(ctx, policy.ActionSuspend, func(ctx context.Context) (string, error) {
			return "", o.dir.SetSuspended(ctx, srv.ID, true)
		})
	}

	if o.settings.Bool(ctx, settings.ResourceUnderAttackOnEnforce) {
		l.step(ctx, policy.ActionUnderAttack, func(ctx context.Context) (string, error) {
			_, err := o.profiles.Apply(ctx, ddos.ProfileUnderAttack, nil, true)
			return "", err
		})
	}

	o.permanent(ctx, l)

	if err := o.store.Delete(ctx, violationsKey(srv.ID)); err != nil {
		l.rep.Errors++
		logging.Ctx(ctx).Warn().Err(err).Int64("server_id", srv.ID).Msg("Failed to reset violation counter")
	}

	o.record(ctx, eventlog.TypeResourceEnforcement, srv, eventlog.RiskCritical, map[string]any{
		"reasons":         det.Reasons,
		"steps":           l.rep.Steps,
		"stopped":         l.rep.Stopped,
		"suspended":       l.rep.Suspended,
		"deleted_servers": l.rep.DeletedServers,
		"deleted_users":   l.rep.DeletedUsers,
		"ip_bans":         l.rep.IPBans,
	})
	eventbus.Notify(ctx, o.notifier, eventbus.Notification{
		Kind:     eventlog.TypeResourceEnforcement,
		Title:    "Resource enforcement",
		Message:  fmt.Sprintf("Server %d enforced for %s", srv.ID, strings.Join(det.Reasons, ", ")),
		Severity: string(eventlog.RiskCritical),
		Meta:     map[string]any{"server_id": srv.ID, "owner_id": srv.OwnerID},
	})
	return l.rep
}

// permanent runs the irreversible rungs: ban the owner's IP, delete the
// server, then delete the owner after every server the owner still has.
// The owner rung deletes the offending server too when the server rung was
// denied; a server that is already gone counts as deleted.
func (o *Orchestrator) permanent(ctx context.Context, l *ladder) {
	srv := l.det.Server

	if srv.OwnerLastIP == "" {
		l.skip(ctx, policy.ActionBanIP, "owner has no known ip")
	} else if l.step(ctx, policy.ActionBanIP, func(ctx context.Context) (string, error) {
		return srv.OwnerLastIP, o.firewall.BanIP(ctx, srv.OwnerLastIP, "resource_"+strings.Join(l.det.Reasons, "+"))
	}) {
		l.rep.IPBans++
	}

	if l.step(ctx, policy.ActionDeleteServer, func(ctx context.Context) (string, error) {
		return "", o.dir.DeleteServer(ctx, srv.ID)
	}) {
		l.rep.DeletedServers++
	}

	l.step(ctx, policy.ActionDeleteOwner, func(ctx context.Context) (string, error) {
		others, err := o.dir.ListServersByOwner(ctx, srv.OwnerID)
		if err != nil {
			return "", fmt.Errorf("list owner servers: %w", err)
		}
		var failed []error
		var deleted int
		for _, other := range others {
			err := o.dir.DeleteServer(ctx, other.ID)
			switch {
			case errors.Is(err, fleet.ErrServerNotFound):
			case err != nil:
				failed = append(failed, fmt.Errorf("delete server %d: %w", other.ID, err))
			default:
				deleted++
			}
		}
		l.rep.DeletedServers += deleted
		if len(failed) > 0 {
			return "", errors.Join(failed...)
		}
		if err := o.dir.DeleteUser(ctx, srv.OwnerID); err != nil {
			return "", err
		}
		l.rep.DeletedUsers++
		return fmt.Sprintf("deleted %d owner servers", deleted), nil
	})
}
