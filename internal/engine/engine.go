// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package engine is the composition root of the automation cycles. Every
// Run method is a stateless entry point: it reads settings, does one batch
// of work and returns a JSON-serializable summary. The operator CLI, the
// HTTP API and the scheduler all call the same methods.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/sentinel/internal/anomaly"
	"github.com/tomtom215/sentinel/internal/ddos"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/nodescan"
	"github.com/tomtom215/sentinel/internal/remote"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/resource"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/simulate"
	"github.com/tomtom215/sentinel/internal/trust"
	"github.com/tomtom215/sentinel/internal/validation"
)

// Cycle names, used for metrics, logs and scheduling.
const (
	CycleAdaptive   = "adaptive"
	CycleTrust      = "trust"
	CycleResource   = "resource"
	CycleReputation = "reputation"
	CycleRetention  = "retention"
)

// ErrNoScanRoot is returned when a scan has neither a path nor a root template.
var ErrNoScanRoot = errors.New("engine: no scan path and no server root template")

// ErrInvalidQuarantine is returned for a non-positive quarantine duration.
var ErrInvalidQuarantine = errors.New("engine: quarantine minutes must be positive")

// Deps are the collaborators of an Engine. Notifier and HTTPClient may be nil.
type Deps struct {
	Settings    *settings.Accessor
	Events      *eventlog.Recorder
	KV          kv.Store
	Baselines   anomaly.BaselineStore
	Directory   fleet.Directory
	Reputations fleet.ReputationProvider
	Control     remote.ServerControl
	Firewall    remote.Firewall
	Indicators  reputation.IndicatorStore
	Notifier    eventbus.Notifier
	HTTPClient  *http.Client
}

// Engine wires the automation components together.
type Engine struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	store    kv.Store
	dir      fleet.Directory

	profiles  *ddos.Profiles
	tuner     *ddos.Tuner
	tracker   *anomaly.Tracker
	trust     *trust.Loop
	resource  *resource.Orchestrator
	inspector *nodescan.Inspector
	memory    *nodescan.MemoryTracker
	scorer    *nodescan.Scorer
	syncer    *reputation.Syncer
	simulator *simulate.Simulator
}

// New builds an Engine and every cycle component behind it.
//
// The components share the settings accessor, the event recorder and the KV
// store, so a cooldown claimed by one cycle is visible to the others and to
// the CLI. A nil Notifier is replaced with eventbus.Discard. The DDoS profile
// manager is built once and shared by the trust loop and the resource
// orchestrator, which both switch profiles.
//
// Example usage:
//
//	eng := engine.New(engine.Deps{
//		Settings:    accessor,
//		Events:      recorder,
//		KV:          kv.NewBadgerStore(db, "sentinel:"),
//		Directory:   fleetStore,
//		Reputations: fleetStore,
//		Control:     control,
//		Firewall:    firewall,
//		Indicators:  indicators,
//	})
//	res, err := eng.RunTrustAutomation(ctx, nil, false)
func New(d Deps) *Engine {
	notifier := d.Notifier
	if notifier == nil {
		notifier = eventbus.Discard{}
	}
	profiles := ddos.NewProfiles(d.Settings, d.Events, notifier)

	return &Engine{
		settings:  d.Settings,
		events:    d.Events,
		store:     d.KV,
		dir:       d.Directory,
		profiles:  profiles,
		tuner:     ddos.NewTuner(d.Settings, d.Events, notifier),
		tracker:   anomaly.NewTracker(d.Baselines, d.Reputations, d.Settings, d.Events),
		trust:     trust.NewLoop(d.Settings, d.Events, d.KV, d.Directory, d.Reputations, profiles, notifier),
		inspector: nodescan.NewInspector(d.Settings, d.Events, d.KV, d.Directory, notifier),
		memory:    nodescan.NewMemoryTracker(d.Settings, d.Events, d.KV),
		scorer:    nodescan.NewScorer(d.Events),
		syncer:    reputation.NewSyncer(d.Settings, d.Events, d.Indicators, d.HTTPClient),
		simulator: simulate.New(d.Events),
		resource: resource.New(resource.Deps{
			Settings: d.Settings,
			Events:   d.Events,
			Store:    d.KV,
			Dir:      d.Directory,
			Control:  d.Control,
			Firewall: d.Firewall,
			Profiles: profiles,
			Notifier: notifier,
		}),
	}
}

// cycle runs fn with a fresh correlation id and records its metrics.
func cycle[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx = logging.ContextWithCycle(logging.ContextWithNewCorrelationID(ctx), name)
	start := time.Now()
	res, err := fn(ctx)
	metrics.RecordCycle(name, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Cycle failed")
	}
	return res, err
}

// ProfileSummary is returned by RunDDoSProfile.
type ProfileSummary struct {
	Profile            string   `json:"profile"`
	Changed            bool     `json:"changed"`
	Whitelist          []string `json:"whitelist"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	BurstThreshold10s  int      `json:"burst_threshold_10s"`
	BlockMinutes       int      `json:"block_duration_minutes"`
	Challenge          bool     `json:"challenge_enabled"`
}

// RunDDoSProfile applies a DDoS profile on operator request. The bundle is
// always written; input is validated first.
func (e *Engine) RunDDoSProfile(ctx context.Context, profile string, whitelist []string) (ProfileSummary, error) {
	return cycle(ctx, "ddos_profile", func(ctx context.Context) (ProfileSummary, error) {
		applied, err := e.profiles.Apply(ctx, strings.TrimSpace(profile), whitelist, true)
		if err != nil {
			return ProfileSummary{}, err
		}
		return ProfileSummary{
			Profile:            applied.Profile,
			Changed:            applied.Changed,
			Whitelist:          applied.Whitelist,
			RateLimitPerMinute: applied.Bundle.RateLimitPerMinute,
			BurstThreshold10s:  applied.Bundle.BurstThreshold10s,
			BlockMinutes:       applied.Bundle.BlockMinutes,
			Challenge:          applied.Bundle.Challenge,
		}, nil
	})
}

// AdaptiveSummary is returned by RunAdaptiveCycle.
type AdaptiveSummary struct {
	Samples       int `json:"samples"`
	Anomalies     int `json:"anomalies"`
	Errors        int `json:"errors"`
	DDoSThreshold int `json:"ddos_threshold"`
}

// RunAdaptiveCycle updates baselines and tunes the DDoS burst threshold.
func (e *Engine) RunAdaptiveCycle(ctx context.Context) (AdaptiveSummary, error) {
	return cycle(ctx, CycleAdaptive, func(ctx context.Context) (AdaptiveSummary, error) {
		res, err := e.tracker.RunCycle(ctx)
		out := AdaptiveSummary{Samples: res.Samples, Anomalies: res.Anomalies, Errors: res.Errors}
		metrics.CycleErrorsTotal.WithLabelValues(CycleAdaptive).Add(float64(res.Errors))
		if err != nil {
			return out, err
		}
		threshold, err := e.tuner.Tune(ctx)
		out.DDoSThreshold = threshold
		return out, err
	})
}

// RunTrustAutomation evaluates one server (serverID non-nil) or the fleet.
func (e *Engine) RunTrustAutomation(ctx context.Context, serverID *int64, force bool) (trust.Result, error) {
	return cycle(ctx, CycleTrust, func(ctx context.Context) (trust.Result, error) {
		res, err := e.trust.Run(ctx, trust.Options{ServerID: serverID, Force: force})
		metrics.CycleErrorsTotal.WithLabelValues(CycleTrust).Add(float64(res.Errors))
		return res, err
	})
}

// RunResourceSafety evaluates one server (serverID non-nil) or the fleet.
func (e *Engine) RunResourceSafety(ctx context.Context, serverID *int64, force bool) (resource.Result, error) {
	return cycle(ctx, CycleResource, func(ctx context.Context) (resource.Result, error) {
		res, err := e.resource.Run(ctx, resource.Options{ServerID: serverID, Force: force})
		metrics.CycleErrorsTotal.WithLabelValues(CycleResource).Add(float64(res.Errors))
		return res, err
	})
}

// ScanSummary is returned by RunNodeSecureScan.
type ScanSummary struct {
	ServerID      int64              `json:"server_id"`
	Root          string             `json:"root"`
	ScannedFiles  int                `json:"scanned_files"`
	WarningsCount int                `json:"warnings_count"`
	Severity      eventlog.RiskLevel `json:"severity"`
	BlockDeploy   bool               `json:"block_deploy"`
	Truncated     bool               `json:"truncated"`
	Findings      []nodescan.Finding `json:"findings"`
}

// RunNodeSecureScan scans a server tree. An empty path resolves through the
// node_server_root_template setting.
func (e *Engine) RunNodeSecureScan(ctx context.Context, serverID int64, path string, skipNPM bool) (ScanSummary, error) {
	return cycle(ctx, "node_scan", func(ctx context.Context) (ScanSummary, error) {
		root, err := e.scanRoot(ctx, serverID, path)
		if err != nil {
			return ScanSummary{}, err
		}
		rep, err := e.inspector.ScanTree(ctx, serverID, root, nodescan.Options{SkipNPM: skipNPM})
		if rep == nil {
			return ScanSummary{}, err
		}
		return ScanSummary{
			ServerID:      serverID,
			Root:          rep.Root,
			ScannedFiles:  rep.ScannedFiles,
			WarningsCount: rep.WarningsCount,
			Severity:      rep.Severity,
			BlockDeploy:   rep.BlockDeploy,
			Truncated:     rep.Truncated,
			Findings:      rep.Findings,
		}, err
	})
}

func (e *Engine) scanRoot(ctx context.Context, serverID int64, path string) (string, error) {
	if path = strings.TrimSpace(path); path != "" {
		return path, nil
	}
	tmpl := e.settings.String(ctx, settings.NodeServerRootTemplate)
	if tmpl == "" {
		return "", ErrNoScanRoot
	}
	srv, err := e.dir.GetServer(ctx, serverID)
	if err != nil {
		return "", fmt.Errorf("load server %d: %w", serverID, err)
	}
	return strings.NewReplacer(
		"{uuid}", srv.UUID,
		"{id}", strconv.FormatInt(srv.ID, 10),
	).Replace(tmpl), nil
}

// RunReputationSync exchanges indicators with the reputation network.
func (e *Engine) RunReputationSync(ctx context.Context) (reputation.Result, error) {
	return cycle(ctx, CycleReputation, e.syncer.Sync)
}

// RunSimulation writes synthetic attack events.
func (e *Engine) RunSimulation(ctx context.Context, typ string, intensity int) (simulate.Result, error) {
	return cycle(ctx, "simulation", func(ctx context.Context) (simulate.Result, error) {
		return e.simulator.Run(ctx, simulate.Request{Type: typ, Intensity: intensity})
	})
}

// RetentionSummary is returned by RunRetention.
type RetentionSummary struct {
	EventsPruned     int64 `json:"events_pruned"`
	IndicatorsPruned int64 `json:"indicators_pruned"`
}

// RunRetention deletes events older than keep and expired indicators.
func (e *Engine) RunRetention(ctx context.Context, keep time.Duration) (RetentionSummary, error) {
	return cycle(ctx, CycleRetention, func(ctx context.Context) (RetentionSummary, error) {
		var out RetentionSummary
		now := e.events.Now()
		n, err := e.events.Store().Prune(ctx, now.Add(-keep))
		if err != nil {
			return out, fmt.Errorf("prune events: %w", err)
		}
		out.EventsPruned = n
		if n, err = e.syncer.Store().PruneExpired(ctx, now); err != nil {
			return out, fmt.Errorf("prune indicators: %w", err)
		}
		out.IndicatorsPruned = n
		logging.Ctx(ctx).Info().
			Int64("events", out.EventsPruned).
			Int64("indicators", out.IndicatorsPruned).
			Msg("Retention pruning complete")
		return out, nil
	})
}

// InspectPayload applies node secure mode to one payload.
func (e *Engine) InspectPayload(ctx context.Context, req nodescan.PayloadRequest) (nodescan.Verdict, error) {
	if err := validation.Struct(req); err != nil {
		return nodescan.Verdict{}, err
	}
	return e.inspector.InspectPayload(ctx, req)
}

// IngestMemorySample feeds the runtime memory leak tracker.
func (e *Engine) IngestMemorySample(ctx context.Context, serverID int64, sample nodescan.Sample) (nodescan.LeakReport, error) {
	if err := validation.Struct(sample); err != nil {
		return nodescan.LeakReport{}, err
	}
	return e.memory.Ingest(ctx, serverID, sample)
}

// SecurityScore returns the composite node security score of a server.
func (e *Engine) SecurityScore(ctx context.Context, serverID int64) (nodescan.Score, error) {
	return e.scorer.Score(ctx, serverID)
}

// QuarantineSummary is returned by Quarantine and QuarantineStatus.
type QuarantineSummary struct {
	ServerID    int64 `json:"server_id"`
	Quarantined bool  `json:"quarantined"`
	Minutes     int   `json:"minutes,omitempty"`
}

// Quarantine flags a server on operator request.
func (e *Engine) Quarantine(ctx context.Context, serverID int64, minutes int) (QuarantineSummary, error) {
	if minutes <= 0 {
		return QuarantineSummary{}, ErrInvalidQuarantine
	}
	if err := trust.Quarantine(ctx, e.store, serverID, time.Duration(minutes)*time.Minute); err != nil {
		return QuarantineSummary{}, err
	}
	_, err := e.events.Record(ctx, eventlog.TypeTrustQuarantine, eventlog.Payload{
		ServerID:  eventlog.Int64(serverID),
		RiskLevel: eventlog.RiskHigh,
		Meta:      map[string]any{"source": "operator", "duration_minutes": minutes},
	})
	return QuarantineSummary{ServerID: serverID, Quarantined: true, Minutes: minutes}, err
}

// QuarantineStatus reports whether a server is quarantined.
func (e *Engine) QuarantineStatus(ctx context.Context, serverID int64) (QuarantineSummary, error) {
	ok, err := trust.IsQuarantined(ctx, e.store, serverID)
	return QuarantineSummary{ServerID: serverID, Quarantined: ok}, err
}

// LookupIndicator returns the active network indicators for (typ, value).
func (e *Engine) LookupIndicator(ctx context.Context, typ, value string) ([]reputation.Indicator, error) {
	return e.syncer.Store().Lookup(ctx, typ, value, e.events.Now())
}

// Settings returns the effective settings.
func (e *Engine) Settings(ctx context.Context) map[string]string {
	return e.settings.Effective(ctx)
}

// SetSetting writes one setting on operator request. Unknown keys are
// rejected; values are clamped when read.
func (e *Engine) SetSetting(ctx context.Context, key, value string) error {
	return e.settings.Set(ctx, key, value)
}
