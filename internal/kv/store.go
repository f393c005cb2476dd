// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package kv provides the TTL key-value store that holds every piece of
// short-lived automation state: violation counters, quarantine flags,
// cooldown locks, previous disk readings, and trust snapshots.
//
// All operations are single-key. SetNX is the only mutual-exclusion
// primitive the automation cycles rely on, and Incr is atomic per key.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// ErrNotInteger is returned by Incr when the existing value is not an integer.
var ErrNotInteger = errors.New("kv: value is not an integer")

// Store is a string key-value store whose entries auto-expire.
//
// It backs every cooldown, counter and flag the cycles keep between runs:
// violation counters, quarantine flags, trust snapshots and the global
// lockdown key. A ttl of zero means the entry never expires.
//
// Implementations:
//   - MemoryStore: in-process map with an injectable clock, used in tests
//   - BadgerStore: Badger v4 with native TTLs, used by the daemon
//
// Usage:
//
//	acquired, err := store.SetNX(ctx, "trust:lockdown", "7", 10*time.Minute)
//	if err != nil || !acquired {
//		return err
//	}
//	n, err := store.Incr(ctx, "rs:violations:7", time.Hour)
type Store interface {
	// Get returns the value and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value, replacing any existing entry and its expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value only if key is absent. It reports whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr adds one to the integer at key and returns the new value. A
	// missing key starts at zero and receives ttl; an existing key keeps
	// its original expiry so the window is anchored at the first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the JSON value at key into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON at key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}
