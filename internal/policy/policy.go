// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package policy decides whether an enforcement action may run.
//
// The capability matrix (which owner role may receive which action for which
// kind of trigger) is a Casbin RBAC policy embedded in the binary. Runtime
// switches from the settings store (permanent actions enabled, per-action
// toggles, storage-only gating) are applied in Go before the matrix is
// consulted. Every caller goes through Evaluate so that the irreversible
// steps of the enforcement ladder have exactly one gate.
package policy

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/tomtom215/sentinel/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Action is an enforcement step.
type Action string

// Enforcement actions, least to most severe.
const (
	ActionQuarantine   Action = "quarantine"
	ActionStop         Action = "stop"
	ActionKill         Action = "kill"
	ActionSuspend      Action = "suspend"
	ActionUnderAttack  Action = "under_attack"
	ActionBlockPayload Action = "block_payload"
	ActionBanIP        Action = "ban_ip"
	ActionDeleteServer Action = "delete_server"
	ActionDeleteOwner  Action = "delete_owner"
)

// Permanent reports whether a is irreversible.
func (a Action) Permanent() bool {
	switch a {
	case ActionBanIP, ActionDeleteServer, ActionDeleteOwner:
		return true
	default:
		return false
	}
}

// Violation reasons produced by the resource orchestrator.
const (
	ReasonCPUSpike         = "cpu_spike"
	ReasonCPUSuperSustain  = "cpu_super_sustained_spike"
	ReasonMemorySpike      = "memory_spike"
	ReasonDiskSpike        = "disk_spike"
	ReasonDiskJumpSpike    = "disk_jump_spike"
	ReasonExternalCPUSpike = "external_cpu_sustained"
)

// Trigger classes, matched against the act column of the policy.
const (
	TriggerStorage   = "storage"
	TriggerCPUSuper  = "cpu_super"
	TriggerUngated   = "ungated"
	TriggerTransient = "transient"
)

// Decision reasons.
const (
	DecisionAllowed          = "allowed"
	DecisionRootExempt       = "root_owner_exempt"
	DecisionPermanentOff     = "permanent_actions_disabled"
	DecisionActionOff        = "action_disabled"
	DecisionStorageOnly      = "permanent_requires_storage_trigger"
	DecisionNotPermitted     = "not_permitted"
	DecisionEvaluationFailed = "evaluation_failed"
)

// Permanent holds the runtime switches for irreversible actions.
type Permanent struct {
	Enabled         bool `json:"enabled"`
	OnlyOnStorage   bool `json:"only_on_storage"`
	ForceOnCPUSuper bool `json:"force_on_cpu_super"`
	BanIP           bool `json:"ban_ip"`
	DeleteServer    bool `json:"delete_server"`
	DeleteOwner     bool `json:"delete_owner"`
}

func (p Permanent) allows(a Action) bool {
	switch a {
	case ActionBanIP:
		return p.BanIP
	case ActionDeleteServer:
		return p.DeleteServer
	case ActionDeleteOwner:
		return p.DeleteOwner
	default:
		return true
	}
}

// Request describes one enforcement step about to run.
type Request struct {
	Action      Action
	OwnerIsRoot bool
	Reasons     []string
	Permanent   Permanent
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow() Decision { return Decision{Allowed: true, Reason: DecisionAllowed} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Policy evaluates requests against a Casbin enforcer.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

// New builds a Policy from a Casbin model and CSV policy text.
func New(modelText, policyText string) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, policyText); err != nil {
		return nil, err
	}
	return &Policy{enforcer: enforcer}, nil
}

// loadPolicy parses CSV policy lines. Comments and blank lines are skipped.
func loadPolicy(enforcer *casbin.SyncedEnforcer, text string) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

var (
	defaultOnce   sync.Once
	defaultPolicy *Policy
	defaultErr    error
)

// Default returns the embedded policy.
func Default() (*Policy, error) {
	defaultOnce.Do(func() {
		defaultPolicy, defaultErr = New(embeddedModel, embeddedPolicy)
	})
	return defaultPolicy, defaultErr
}

// Evaluate checks req against the embedded policy.
//
// Temporary actions are allowed on tenant-owned servers and never on
// root-owned ones. Permanent actions must also pass the runtime switches in
// req.Permanent (the master switch and the per-action switch) and a
// qualifying trigger class derived from req.Reasons. A policy that fails to load denies everything with
// DecisionEvaluationFailed.
//
// Example usage:
//
//	d := policy.Evaluate(policy.Request{
//		Action:    policy.ActionDeleteServer,
//		Reasons:   []string{policy.ReasonDiskSpike},
//		Permanent: resource.PermanentPolicy(ctx, accessor),
//	})
//	if !d.Allowed {
//		log.Info().Str("reason", d.Reason).Msg("Step denied")
//	}
func Evaluate(req Request) Decision {
	p, err := Default()
	if err != nil {
		logging.Error().Err(err).Msg("Embedded enforcement policy failed to load")
		return deny(DecisionEvaluationFailed)
	}
	return p.Evaluate(req)
}

// Evaluate returns whether req may run, with the reason. Errors from the
// enforcer deny.
func (p *Policy) Evaluate(req Request) Decision {
	subject := "role:tenant"
	if req.OwnerIsRoot {
		subject = "role:root"
	}

	trigger := TriggerTransient
	if req.Action.Permanent() {
		if !req.Permanent.Enabled {
			return deny(DecisionPermanentOff)
		}
		if !req.Permanent.allows(req.Action) {
			return deny(DecisionActionOff)
		}
		trigger = TriggerClass(req.Reasons, req.Permanent)
	}

	ok, err := p.enforcer.Enforce(subject, string(req.Action), trigger)
	if err != nil {
		logging.Error().Err(err).Str("action", string(req.Action)).Msg("Policy evaluation failed")
		return deny(DecisionEvaluationFailed)
	}
	if ok {
		return allow()
	}

	switch {
	case req.OwnerIsRoot:
		return deny(DecisionRootExempt)
	case req.Action.Permanent() && trigger == TriggerTransient:
		return deny(DecisionStorageOnly)
	default:
		return deny(DecisionNotPermitted)
	}
}

// TriggerClass maps violation reasons to the policy's trigger classes.
func TriggerClass(reasons []string, perm Permanent) string {
	if !perm.OnlyOnStorage {
		return TriggerUngated
	}
	var cpuSuper bool
	for _, r := range reasons {
		switch r {
		case ReasonDiskSpike, ReasonDiskJumpSpike:
			return TriggerStorage
		case ReasonCPUSuperSustain, ReasonExternalCPUSpike:
			cpuSuper = true
		}
	}
	if cpuSuper && perm.ForceOnCPUSuper {
		return TriggerCPUSuper
	}
	return TriggerTransient
}
