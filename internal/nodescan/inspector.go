// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package nodescan is the node secure mode: it inspects payloads flowing
// through a game server's console and file channels for leaked secrets and
// container escape probes, scans server trees before deploys, tracks runtime
// memory for leaks and combines the results into a security score.
package nodescan

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/policy"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/trust"
)

// Secret actions.
const (
	SecretActionBlock  = "block"
	SecretActionRedact = "redact"
)

// PayloadRequest is a payload about to reach a server.
type PayloadRequest struct {
	ServerID    *int64 `json:"server_id,omitempty"`
	ActorUserID *int64 `json:"actor_user_id,omitempty"`
	IP          string `json:"ip,omitempty" validate:"omitempty,ip"`
	Channel     string `json:"channel" validate:"required,max=64"`
	Body        string `json:"body"`
	ActorIsRoot bool   `json:"actor_is_root"`
}

// Verdict is the inspection result. Body is the payload to forward, redacted
// when Redacted is set.
type Verdict struct {
	Allowed     bool      `json:"allowed"`
	Body        string    `json:"body"`
	Redacted    bool      `json:"redacted"`
	Quarantined bool      `json:"quarantined"`
	Truncated   bool      `json:"truncated"`
	BlockReason string    `json:"block_reason,omitempty"`
	Findings    []Finding `json:"findings"`
}

// Inspector applies node secure mode to payloads and server trees.
type Inspector struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	store    kv.Store
	dir      fleet.Directory
	notifier eventbus.Notifier
	pack     *Pack
}

// NewInspector creates an inspector. dir may be nil, in which case the
// server owner is never treated as root.
func NewInspector(
	s *settings.Accessor,
	events *eventlog.Recorder,
	store kv.Store,
	dir fleet.Directory,
	notifier eventbus.Notifier,
) *Inspector {
	return &Inspector{
		settings: s,
		events:   events,
		store:    store,
		dir:      dir,
		notifier: notifier,
		pack:     DefaultPack(),
	}
}

// WithPack replaces the signature pack.
func (in *Inspector) WithPack(p *Pack) *Inspector {
	in.pack = p
	return in
}

// InspectPayload scans req.Body and decides whether it may be forwarded.
func (in *Inspector) InspectPayload(ctx context.Context, req PayloadRequest) (Verdict, error) {
	v := Verdict{Allowed: true, Body: req.Body, Findings: []Finding{}}
	if !in.settings.Bool(ctx, settings.NodeSecureModeEnabled) {
		return v, nil
	}

	limit := in.settings.Int(ctx, settings.NodeScanMaxPayloadBytes)
	v.Truncated = len(req.Body) > limit

	secrets := NewSecretScanner(in.pack, limit)
	escapes := NewEscapeScanner(in.pack, limit)
	secretHits := secrets.Scan(req.Body)
	escapeHits := escapes.Scan(req.Body)
	v.Findings = append(append(v.Findings, secretHits...), escapeHits...)
	countFindings(v.Findings)

	ownerIsRoot := in.ownerIsRoot(ctx, req.ServerID)
	var errs []error

	if high := filterConfidence(secretHits, ConfidenceHigh); len(high) > 0 {
		if err := in.onSecret(ctx, req, high, ownerIsRoot, secrets, &v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(escapeHits) > 0 {
		if err := in.onEscape(ctx, req, escapeHits, &v); err != nil {
			errs = append(errs, err)
		}
	}
	return v, errors.Join(errs...)
}

func (in *Inspector) onSecret(
	ctx context.Context,
	req PayloadRequest,
	high []Finding,
	ownerIsRoot bool,
	scanner *SecretScanner,
	v *Verdict,
) error {
	action := in.settings.String(ctx, settings.NodeSecretAction)
	masked := make([]string, 0, len(high))
	for _, f := range high {
		masked = append(masked, f.Match)
	}

	var errs []error
	if req.ServerID != nil && in.settings.Bool(ctx, settings.NodeSecretAutoQuarantine) {
		d := policy.Evaluate(policy.Request{Action: policy.ActionQuarantine, OwnerIsRoot: ownerIsRoot})
		if d.Allowed {
			minutes := in.settings.Minutes(ctx, settings.NodeSecretQuarantineMin)
			if err := trust.Quarantine(ctx, in.store, *req.ServerID, minutes); err != nil {
				errs = append(errs, fmt.Errorf("quarantine server %d: %w", *req.ServerID, err))
			} else {
				v.Quarantined = true
			}
		}
	}

	switch action {
	case SecretActionBlock:
		if in.blockAllowed(req) {
			v.Allowed = false
			v.Body = ""
			v.BlockReason = "secret_detected"
		}
	default:
		redacted, n := scanner.Redact(req.Body)
		if n > 0 {
			v.Body = redacted
			v.Redacted = true
		}
	}

	_, err := in.events.Record(ctx, eventlog.TypeNodeSecretDetected, eventlog.Payload{
		ActorUserID: req.ActorUserID,
		ServerID:    req.ServerID,
		IP:          req.IP,
		RiskLevel:   eventlog.RiskHigh,
		Meta: map[string]any{
			"channel":     req.Channel,
			"signatures":  ids(high),
			"matches":     masked,
			"action":      action,
			"blocked":     !v.Allowed,
			"redacted":    v.Redacted,
			"quarantined": v.Quarantined,
			"actor_root":  req.ActorIsRoot,
		},
	})
	if err != nil {
		errs = append(errs, err)
	}

	eventbus.Notify(ctx, in.notifier, eventbus.Notification{
		Kind:     eventlog.TypeNodeSecretDetected,
		Title:    "Secret detected in server payload",
		Message:  fmt.Sprintf("%d high-confidence secret(s) on channel %s", len(high), req.Channel),
		Severity: string(eventlog.RiskHigh),
		Meta:     map[string]any{"server_id": req.ServerID, "signatures": ids(high)},
	})
	return errors.Join(errs...)
}

func (in *Inspector) onEscape(ctx context.Context, req PayloadRequest, hits []Finding, v *Verdict) error {
	if in.settings.Bool(ctx, settings.NodeEscapeBlock) && in.blockAllowed(req) {
		v.Allowed = false
		v.Body = ""
		v.BlockReason = "escape_probe"
	}

	logging.Ctx(ctx).Warn().
		Strs("signatures", ids(hits)).
		Str("channel", req.Channel).
		Bool("blocked", !v.Allowed).
		Msg("Container escape probe detected")

	_, err := in.events.Record(ctx, eventlog.TypeNodeEscapeProbe, eventlog.Payload{
		ActorUserID: req.ActorUserID,
		ServerID:    req.ServerID,
		IP:          req.IP,
		RiskLevel:   eventlog.RiskCritical,
		Meta: map[string]any{
			"channel":    req.Channel,
			"signatures": ids(hits),
			"blocked":    !v.Allowed,
			"actor_root": req.ActorIsRoot,
		},
	})
	return err
}

// blockAllowed asks the policy whether the actor's payload may be dropped.
// Root actors are logged only.
func (in *Inspector) blockAllowed(req PayloadRequest) bool {
	d := policy.Evaluate(policy.Request{Action: policy.ActionBlockPayload, OwnerIsRoot: req.ActorIsRoot})
	return d.Allowed
}

func (in *Inspector) ownerIsRoot(ctx context.Context, serverID *int64) bool {
	if serverID == nil || in.dir == nil {
		return false
	}
	srv, err := in.dir.GetServer(ctx, *serverID)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int64("server_id", *serverID).Msg("Server lookup failed during inspection")
		return false
	}
	return srv.OwnerIsRoot
}

func filterConfidence(findings []Finding, c Confidence) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Confidence == c {
			out = append(out, f)
		}
	}
	return out
}

func countFindings(findings []Finding) {
	for _, f := range findings {
		metrics.ScannerFindingsTotal.WithLabelValues(f.Kind, string(f.Severity)).Inc()
	}
}
