// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package settings provides typed, clamped access to the panel's runtime
// settings. Values live in a flat string store; every read goes through a
// short-lived cache and is clamped to the documented bounds in Catalog, so
// a bad value written by an operator can never push a control loop outside
// its safe range.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/sentinel/internal/cache"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// DefaultCacheTTL is how long a read stays cached.
const DefaultCacheTTL = 30 * time.Second

// ErrUnknownSetting is returned when writing a key missing from Catalog.
var ErrUnknownSetting = errors.New("settings: unknown key")

// Store is the persistent flat settings table.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type cached struct {
	value string
	ok    bool
}

// Accessor reads and writes settings through a TTL cache.
type Accessor struct {
	store Store
	cache *cache.Cache[cached]
}

// NewAccessor creates an accessor over store. A ttl of zero uses DefaultCacheTTL.
func NewAccessor(store Store, ttl time.Duration, opts ...cache.Option) *Accessor {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Accessor{store: store, cache: cache.New[cached](ttl, opts...)}
}

// Close stops the cache sweeper.
func (a *Accessor) Close() {
	a.cache.Close()
}

// raw returns the stored value, consulting the cache first. Store errors are
// logged and treated as "absent" so callers fall back to the default.
func (a *Accessor) raw(ctx context.Context, key string) (string, bool) {
	if c, ok := a.cache.Get(key); ok {
		metrics.SettingsCacheTotal.WithLabelValues("hit").Inc()
		return c.value, c.ok
	}
	metrics.SettingsCacheTotal.WithLabelValues("miss").Inc()

	value, ok, err := a.store.Get(ctx, key)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Settings read failed; using default")
		return "", false
	}
	a.cache.Set(key, cached{value: value, ok: ok})
	return value, ok
}

func definition(key string) Definition {
	if d, ok := Catalog[key]; ok {
		return d
	}
	return Definition{Key: key, Kind: KindString}
}

// String returns the string value of key, or its default.
func (a *Accessor) String(ctx context.Context, key string) string {
	if v, ok := a.raw(ctx, key); ok {
		return v
	}
	return definition(key).Default
}

// Float returns the clamped float value of key.
func (a *Accessor) Float(ctx context.Context, key string) float64 {
	d := definition(key)
	fallback, _ := strconv.ParseFloat(d.Default, 64)

	v := fallback
	if s, ok := a.raw(ctx, key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
			v = parsed
		}
	}
	return clamp(v, d)
}

// Int returns the clamped integer value of key. Fractional values truncate.
func (a *Accessor) Int(ctx context.Context, key string) int {
	return int(a.Float(ctx, key))
}

// Bool returns the boolean value of key.
func (a *Accessor) Bool(ctx context.Context, key string) bool {
	d := definition(key)
	if s, ok := a.raw(ctx, key); ok {
		if b, valid := parseBool(s); valid {
			return b
		}
	}
	b, _ := parseBool(d.Default)
	return b
}

// Minutes returns Int(key) as a duration in minutes.
func (a *Accessor) Minutes(ctx context.Context, key string) time.Duration {
	return time.Duration(a.Int(ctx, key)) * time.Minute
}

// Seconds returns Int(key) as a duration in seconds.
func (a *Accessor) Seconds(ctx context.Context, key string) time.Duration {
	return time.Duration(a.Int(ctx, key)) * time.Second
}

// List returns a comma-separated setting split into trimmed, non-empty items.
func (a *Accessor) List(ctx context.Context, key string) []string {
	var out []string
	for _, item := range strings.Split(a.String(ctx, key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Set writes key and invalidates its cache entry.
func (a *Accessor) Set(ctx context.Context, key, value string) error {
	if _, ok := Catalog[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := a.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	a.cache.Delete(key)
	return nil
}

// SetMany writes several keys. Keys are validated before any write.
func (a *Accessor) SetMany(ctx context.Context, values map[string]string) error {
	for k := range values {
		if _, ok := Catalog[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, k)
		}
	}
	for k, v := range values {
		if err := a.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops key from the cache. Used when another process writes the store.
func (a *Accessor) Invalidate(key string) {
	a.cache.Delete(key)
}

// InvalidateAll empties the cache.
func (a *Accessor) InvalidateAll() {
	a.cache.Clear()
}

// Effective returns every catalog key with its clamped effective value.
func (a *Accessor) Effective(ctx context.Context) map[string]string {
	out := make(map[string]string, len(Catalog))
	for key, d := range Catalog {
		switch d.Kind {
		case KindInt:
			out[key] = strconv.Itoa(a.Int(ctx, key))
		case KindFloat:
			out[key] = strconv.FormatFloat(a.Float(ctx, key), 'f', -1, 64)
		case KindBool:
			out[key] = strconv.FormatBool(a.Bool(ctx, key))
		default:
			out[key] = a.String(ctx, key)
		}
	}
	return out
}

func clamp(v float64, d Definition) float64 {
	if d.Kind != KindInt && d.Kind != KindFloat {
		return v
	}
	if d.Min == 0 && d.Max == 0 {
		return v
	}
	return math.Max(d.Min, math.Min(d.Max, v))
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
