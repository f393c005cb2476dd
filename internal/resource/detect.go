// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package resource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/policy"
	"github.com/tomtom215/sentinel/internal/remote"
	"github.com/tomtom215/sentinel/internal/settings"
)

const (
	gib           = 1 << 30
	diskPrevTTL   = 24 * time.Hour
	incidentTTL   = 24 * time.Hour
	cpuSuperGrace = 2
)

func diskPrevKey(id int64) string      { return "rs:disk_prev:" + strconv.FormatInt(id, 10) }
func cpuSuperKey(id int64) string      { return "rs:cpu_super:" + strconv.FormatInt(id, 10) }
func incidentKey(eventID string) string { return "rs:ext_incident:" + eventID }

// Detection is the outcome of the detect step for one server.
type Detection struct {
	Server fleet.Server       `json:"server"`
	Usage  remote.Utilization `json:"usage"`

	// CPUPercent is usage relative to the server's CPU limit (or absolute
	// usage when the server has no limit).
	CPUPercent     float64 `json:"cpu_percent"`
	PerCorePercent float64 `json:"per_core_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	DiskPercent    float64 `json:"disk_percent"`

	DiskPrevBytes  int64 `json:"disk_prev_bytes"`
	DiskDeltaBytes int64 `json:"disk_delta_bytes"`

	CPUSuper       CPUSuperState `json:"cpu_super"`
	ExternalSignal string        `json:"external_signal,omitempty"`

	Reasons []string `json:"reasons"`
}

// StorageTriggered reports whether a disk reason fired.
func (d *Detection) StorageTriggered() bool {
	for _, r := range d.Reasons {
		if r == policy.ReasonDiskSpike || r == policy.ReasonDiskJumpSpike {
			return true
		}
	}
	return false
}

func (d *Detection) meta() map[string]any {
	m := map[string]any{
		"reasons":          d.Reasons,
		"cpu_absolute":     d.Usage.CPUPercent,
		"cpu_percent":      d.CPUPercent,
		"per_core_percent": d.PerCorePercent,
		"memory_percent":   d.MemoryPercent,
		"disk_percent":     d.DiskPercent,
		"disk_bytes":       d.Usage.DiskBytes,
		"disk_delta_bytes": d.DiskDeltaBytes,
	}
	if d.CPUSuper.Cycles > 0 {
		m["cpu_super_cycles"] = d.CPUSuper.Cycles
		m["cpu_super_since"] = d.CPUSuper.Since
	}
	if d.ExternalSignal != "" {
		m["external_event_id"] = d.ExternalSignal
	}
	return m
}

// CPUSuperState tracks an ongoing CPU-super streak. Since and Last are
// wall-clock times; Cycles counts consecutive observations.
type CPUSuperState struct {
	Since  time.Time `json:"since"`
	Last   time.Time `json:"last"`
	Cycles int       `json:"cycles"`
}

func percentOf(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return v / limit * 100
}

// Detect computes the violation reasons for srv from usage.
func (o *Orchestrator) Detect(ctx context.Context, srv fleet.Server, usage remote.Utilization) (*Detection, error) {
	det := &Detection{Server: srv, Usage: usage}
	lim := srv.Limits

	det.CPUPercent = usage.CPUPercent
	if lim.CPUPercent > 0 {
		det.CPUPercent = percentOf(usage.CPUPercent, lim.CPUPercent)
	}
	det.PerCorePercent = usage.CPUPercent / lim.Cores()
	det.MemoryPercent = percentOf(float64(usage.MemoryBytes), float64(lim.MemoryBytes))
	det.DiskPercent = percentOf(float64(usage.DiskBytes), float64(lim.DiskBytes))

	if det.CPUPercent >= o.settings.Float(ctx, settings.ResourceCPUThresholdPercent) {
		det.Reasons = append(det.Reasons, policy.ReasonCPUSpike)
	}

	sustained, err := o.trackCPUSuper(ctx, det)
	if err != nil {
		return nil, err
	}
	if sustained {
		det.Reasons = append(det.Reasons, policy.ReasonCPUSuperSustain)
	}

	if lim.MemoryBytes > 0 && det.MemoryPercent >= o.settings.Float(ctx, settings.ResourceMemoryThresholdPercent) {
		det.Reasons = append(det.Reasons, policy.ReasonMemorySpike)
	}
	if lim.DiskBytes > 0 && det.DiskPercent >= o.settings.Float(ctx, settings.ResourceDiskThresholdPercent) {
		det.Reasons = append(det.Reasons, policy.ReasonDiskSpike)
	}

	jump, err := o.diskJump(ctx, det)
	if err != nil {
		return nil, err
	}
	if jump {
		det.Reasons = append(det.Reasons, policy.ReasonDiskJumpSpike)
	}

	if len(det.Reasons) == 0 {
		external, err := o.externalSignal(ctx, srv)
		if err != nil {
			return nil, err
		}
		if external != "" {
			det.ExternalSignal = external
			det.Reasons = append(det.Reasons, policy.ReasonExternalCPUSpike)
		}
	}
	return det, nil
}

// diskJump compares the current disk usage with the previous reading and
// stores the current one.
func (o *Orchestrator) diskJump(ctx context.Context, det *Detection) (bool, error) {
	key := diskPrevKey(det.Server.ID)
	raw, found, err := o.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read previous disk usage: %w", err)
	}
	if err := o.store.Set(ctx, key, strconv.FormatInt(det.Usage.DiskBytes, 10), diskPrevTTL); err != nil {
		return false, fmt.Errorf("store disk usage: %w", err)
	}
	if !found {
		return false, nil
	}
	prev, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}

	det.DiskPrevBytes = prev
	det.DiskDeltaBytes = det.Usage.DiskBytes - prev

	jumpBytes := o.settings.Float(ctx, settings.ResourceDiskJumpGB) * gib
	if float64(det.DiskDeltaBytes) >= jumpBytes {
		return true, nil
	}
	mult := o.settings.Float(ctx, settings.ResourceDiskJumpMultiplier)
	return prev > 0 && float64(det.Usage.DiskBytes) >= float64(prev)*mult, nil
}

// trackCPUSuper maintains the CPU-super streak. The streak is sustained
// once it spans resource_cpu_super_seconds of wall-clock time or lasts
// resource_cpu_super_cycles consecutive observations. A gap between
// observations longer than the seconds threshold starts a new streak, and
// any observation below the thresholds clears it.
func (o *Orchestrator) trackCPUSuper(ctx context.Context, det *Detection) (bool, error) {
	key := cpuSuperKey(det.Server.ID)
	hot := det.PerCorePercent >= o.settings.Float(ctx, settings.ResourceCPUSuperPerCorePercent) ||
		det.Usage.CPUPercent >= o.settings.Float(ctx, settings.ResourceCPUSuperTotalPercent)

	if !hot {
		if err := o.store.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("reset cpu super streak: %w", err)
		}
		return false, nil
	}

	now := o.events.Now()
	window := o.settings.Seconds(ctx, settings.ResourceCPUSuperSeconds)

	var st CPUSuperState
	found, err := kv.GetJSON(ctx, o.store, key, &st)
	if err != nil {
		return false, fmt.Errorf("read cpu super streak: %w", err)
	}
	if !found || now.Sub(st.Last) > window || now.Before(st.Since) {
		st = CPUSuperState{Since: now}
	}
	st.Cycles++
	st.Last = now

	if err := kv.SetJSON(ctx, o.store, key, st, cpuSuperGrace*window); err != nil {
		return false, fmt.Errorf("store cpu super streak: %w", err)
	}
	det.CPUSuper = st

	cycles := o.settings.Int(ctx, settings.ResourceCPUSuperCycles)
	return now.Sub(st.Since) >= window || st.Cycles >= cycles, nil
}

// externalSignal returns the id of an unconsumed node_cpu_sustained event
// for srv inside the signal window. Each event is consumed once.
func (o *Orchestrator) externalSignal(ctx context.Context, srv fleet.Server) (string, error) {
	since := o.events.Now().Add(-o.settings.Minutes(ctx, settings.ResourceExternalSignalMinutes))
	events, err := o.events.Store().Query(ctx, eventlog.Filter{
		Types:    []string{eventlog.TypeNodeCPUSustained},
		ServerID: eventlog.Int64(srv.ID),
		Since:    since,
		Limit:    1,
	})
	if err != nil && !errors.Is(err, eventlog.ErrNotFound) {
		return "", fmt.Errorf("query external cpu signal: %w", err)
	}
	if len(events) == 0 {
		return "", nil
	}

	latest := events[0]
	acquired, err := o.store.SetNX(ctx, incidentKey(latest.ID), "1", incidentTTL)
	if err != nil {
		return "", fmt.Errorf("claim external incident: %w", err)
	}
	if !acquired {
		return "", nil
	}
	return latest.ID, nil
}
