// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package ddos owns the global DDoS configuration: named profiles that bundle
// rate-limit settings, and the burst-threshold auto-tuner.
package ddos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/validation"
)

// Profile names.
const (
	ProfileNormal      = "normal"
	ProfileElevated    = "elevated"
	ProfileUnderAttack = "under_attack"
)

var (
	// ErrUnknownProfile is returned for a profile name outside the catalog.
	ErrUnknownProfile = errors.New("ddos: unknown profile")

	// ErrInvalidWhitelistEntry is returned when a whitelist entry is neither
	// an IP nor a CIDR range.
	ErrInvalidWhitelistEntry = errors.New("ddos: invalid whitelist entry")
)

// loopback addresses are always whitelisted under attack.
var loopback = []string{"127.0.0.1", "::1"}

// Bundle is the set of settings a profile writes.
type Bundle struct {
	RateLimitPerMinute int  `json:"rate_limit_per_minute"`
	BurstThreshold10s  int  `json:"burst_threshold_10s"`
	BlockMinutes       int  `json:"block_duration_minutes"`
	Challenge          bool `json:"challenge_enabled"`
}

var bundles = map[string]Bundle{
	ProfileNormal:      {RateLimitPerMinute: 600, BurstThreshold10s: 150, BlockMinutes: 10},
	ProfileElevated:    {RateLimitPerMinute: 300, BurstThreshold10s: 100, BlockMinutes: 30, Challenge: true},
	ProfileUnderAttack: {RateLimitPerMinute: 120, BurstThreshold10s: 40, BlockMinutes: 120, Challenge: true},
}

// LookupBundle returns the bundle for name.
func LookupBundle(name string) (Bundle, error) {
	b, ok := bundles[name]
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return b, nil
}

// Applied describes the outcome of Profiles.Apply.
type Applied struct {
	Profile   string   `json:"profile"`
	Whitelist []string `json:"whitelist,omitempty"`
	Changed   bool     `json:"changed"`
	Bundle    Bundle   `json:"bundle"`
}

// Profiles applies named bundles to the settings store.
type Profiles struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	notifier eventbus.Notifier
}

// NewProfiles creates a profile applier. notifier may be nil.
func NewProfiles(s *settings.Accessor, events *eventlog.Recorder, notifier eventbus.Notifier) *Profiles {
	return &Profiles{settings: s, events: events, notifier: notifier}
}

// Apply writes the named bundle. Without force, re-applying the active
// profile is a no-op. under_attack merges whitelist with the stored list
// and loopback. All input is validated before anything is written.
func (p *Profiles) Apply(ctx context.Context, name string, whitelist []string, force bool) (Applied, error) {
	bundle, err := LookupBundle(name)
	if err != nil {
		return Applied{}, err
	}
	for _, entry := range whitelist {
		if !validation.IsIPOrCIDR(strings.TrimSpace(entry)) {
			return Applied{}, fmt.Errorf("%w: %q", ErrInvalidWhitelistEntry, entry)
		}
	}

	res := Applied{Profile: name, Bundle: bundle}

	current := p.settings.String(ctx, settings.DDoSProfile)
	if current == name && !force && len(whitelist) == 0 {
		res.Whitelist = p.settings.List(ctx, settings.DDoSWhitelist)
		return res, nil
	}

	values := map[string]string{
		settings.DDoSProfile:           name,
		settings.DDoSRateLimitPerMin:   strconv.Itoa(bundle.RateLimitPerMinute),
		settings.DDoSBurstThreshold10s: strconv.Itoa(bundle.BurstThreshold10s),
		settings.DDoSBlockDurationMin:  strconv.Itoa(bundle.BlockMinutes),
		settings.DDoSChallengeEnabled:  strconv.FormatBool(bundle.Challenge),
	}

	switch {
	case name == ProfileUnderAttack:
		res.Whitelist = mergeWhitelist(whitelist, p.settings.List(ctx, settings.DDoSWhitelist), loopback)
		values[settings.DDoSWhitelist] = strings.Join(res.Whitelist, ",")
	case len(whitelist) > 0:
		res.Whitelist = mergeWhitelist(whitelist)
		values[settings.DDoSWhitelist] = strings.Join(res.Whitelist, ",")
	default:
		res.Whitelist = p.settings.List(ctx, settings.DDoSWhitelist)
	}

	if err := p.settings.SetMany(ctx, values); err != nil {
		return Applied{}, fmt.Errorf("apply profile %s: %w", name, err)
	}
	res.Changed = true

	logging.Ctx(ctx).Info().
		Str("profile", name).
		Str("previous", current).
		Bool("force", force).
		Strs("whitelist", res.Whitelist).
		Msg("DDoS profile applied")

	if _, err := p.events.Record(ctx, eventlog.TypeDDoSProfileApplied, eventlog.Payload{
		RiskLevel: profileRisk(name),
		Meta: map[string]any{
			"profile":   name,
			"previous":  current,
			"force":     force,
			"whitelist": res.Whitelist,
		},
	}); err != nil {
		return res, err
	}

	eventbus.Notify(ctx, p.notifier, eventbus.Notification{
		Kind:     eventlog.TypeDDoSProfileApplied,
		Title:    "DDoS profile changed",
		Message:  fmt.Sprintf("DDoS profile switched from %s to %s", current, name),
		Severity: string(profileRisk(name)),
		Meta:     map[string]any{"profile": name},
	})
	return res, nil
}

func profileRisk(name string) eventlog.RiskLevel {
	switch name {
	case ProfileUnderAttack:
		return eventlog.RiskHigh
	case ProfileElevated:
		return eventlog.RiskMedium
	default:
		return eventlog.RiskInfo
	}
}

// mergeWhitelist unions the lists, trimming blanks and dropping invalid
// stored entries. Output is sorted for stable storage.
func mergeWhitelist(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, entry := range list {
			entry = strings.TrimSpace(entry)
			if entry == "" || !validation.IsIPOrCIDR(entry) {
				continue
			}
			seen[entry] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for entry := range seen {
		out = append(out, entry)
	}
	sort.Strings(out)
	return out
}
