// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package eventlog is the append-only security event log. Every detection
// and enforcement decision made by the automation cycles is recorded here,
// and each event carrying an IP refreshes that IP's risk snapshot.
package eventlog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RiskLevel classifies the severity of a security event.
type RiskLevel string

// Risk levels, lowest to highest.
const (
	RiskInfo     RiskLevel = "info"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskInfo:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank orders risk levels; unknown levels rank as info.
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// Valid reports whether r is one of the known levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// ParseRiskLevel parses a case-insensitive risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return RiskInfo, fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// MaxRisk returns the more severe of a and b.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Event types emitted by the automation engine.
const (
	TypeTrustAnomaly         = "trust_anomaly"
	TypeDDoSThresholdTuned   = "ddos_threshold_tuned"
	TypeDDoSProfileApplied   = "ddos_profile_applied"
	TypeRateLimited          = "rate_limited"
	TypeDDoSBurstBlocked     = "ddos_burst_blocked"
	TypeTrustQuarantine      = "trust_quarantine"
	TypeTrustElevatedProfile = "trust_elevated_profile"
	TypeTrustLockdown        = "trust_lockdown"
	TypeTrustCheckFailed     = "trust_check_failed"
	TypeResourceStatsFailed  = "resource_stats_failed"
	TypeResourceViolation    = "resource_violation"
	TypeResourceEnforcement  = "resource_enforcement"
	TypeResourceEnforceStep  = "resource_enforcement_step"
	TypeNodeCPUSustained     = "node_cpu_sustained"
	TypeNodeSecretDetected   = "node_secret_detected"
	TypeNodeEscapeProbe      = "node_escape_probe"
	TypeNodeDangerousPattern = "node_dangerous_pattern"
	TypeNodeDependencyRisk   = "node_dependency_warning"
	TypeNodeMemoryLeak       = "node_memory_leak"
	TypeNodeScanCompleted    = "node_scan_completed"
	TypeAuthFailed           = "auth_failed"
	TypePrivEscalation       = "privilege_escalation_attempt"
	TypeReputationSynced     = "reputation_synced"
)

// ErrNotFound is returned when a snapshot or event does not exist.
var ErrNotFound = errors.New("eventlog: not found")

// ErrEmptyEventType is returned by Record when no event type is given.
var ErrEmptyEventType = errors.New("eventlog: event type is required")

// Event is an immutable security event.
type Event struct {
	ID          string         `json:"id"`
	ActorUserID *int64         `json:"actor_user_id,omitempty"`
	ServerID    *int64         `json:"server_id,omitempty"`
	IP          string         `json:"ip,omitempty"`
	EventType   string         `json:"event_type"`
	RiskLevel   RiskLevel      `json:"risk_level"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Payload carries the optional fields of an event being recorded.
type Payload struct {
	ActorUserID *int64
	ServerID    *int64
	IP          string
	RiskLevel   RiskLevel
	Meta        map[string]any

	// Country is an ISO country code resolved by the caller, if known.
	Country string
}

// RiskSnapshot is the single risk record per identifier (usually an IP).
// RiskScore and RiskMode are owned by the adaptive risk evaluator and are
// never changed by event recording.
type RiskSnapshot struct {
	Identifier string    `json:"identifier"`
	RiskScore  int       `json:"risk_score"`
	RiskMode   string    `json:"risk_mode"`
	GeoCountry string    `json:"geo_country,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Filter selects events. Zero-valued fields do not constrain.
type Filter struct {
	Types    []string
	ServerID *int64
	IP       string
	MinRisk  RiskLevel
	Since    time.Time
	Limit    int
}

// IPSummary aggregates events for one (ip, event type) pair.
type IPSummary struct {
	IP        string    `json:"ip"`
	EventType string    `json:"event_type"`
	Count     int64     `json:"count"`
	MaxRisk   RiskLevel `json:"max_risk"`
	LastSeen  time.Time `json:"last_seen"`
}

// Int64 returns a pointer to v. Convenience for optional id fields.
func Int64(v int64) *int64 {
	return &v
}
