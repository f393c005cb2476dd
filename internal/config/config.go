// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/sentinel/internal/database"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/remote"
)

// KV backends.
const (
	KVBackendBadger = "badger"
	KVBackendMemory = "memory"
)

// Config holds the process configuration. Behavioral security settings
// (thresholds, toggles, profiles) live in the settings store instead so
// operators can change them without a restart.
type Config struct {
	Server        ServerConfig           `koanf:"server"`
	Database      database.Config        `koanf:"database"`
	KV            KVConfig               `koanf:"kv"`
	Settings      SettingsConfig         `koanf:"settings"`
	Daemon        remote.Config          `koanf:"daemon"`
	Firewall      remote.FirewallConfig  `koanf:"firewall"`
	Geo           remote.GeoConfig       `koanf:"geo"`
	EventBus      eventbus.Config        `koanf:"event_bus"`
	Notifications eventbus.WebhookConfig `koanf:"notifications"`
	Scheduler     SchedulerConfig        `koanf:"scheduler"`
	Retention     RetentionConfig        `koanf:"retention"`
	Logging       LoggingConfig          `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	// APIToken guards every /api route. Empty disables the check, which
	// Validate only accepts when the listener is bound to loopback.
	APIToken string `koanf:"api_token"`
}

// KVConfig selects the key-value backend for counters, cooldowns and flags.
type KVConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
	Prefix  string `koanf:"prefix"`
}

// SettingsConfig tunes the settings accessor.
type SettingsConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// SchedulerConfig sets the interval of each periodic cycle. A zero
// interval disables that cycle.
type SchedulerConfig struct {
	Enabled            bool          `koanf:"enabled"`
	AdaptiveInterval   time.Duration `koanf:"adaptive_interval"`
	TrustInterval      time.Duration `koanf:"trust_interval"`
	ResourceInterval   time.Duration `koanf:"resource_interval"`
	ReputationInterval time.Duration `koanf:"reputation_interval"`
	RetentionInterval  time.Duration `koanf:"retention_interval"`
	// CycleTimeout bounds a single cycle run.
	CycleTimeout time.Duration `koanf:"cycle_timeout"`
}

// RetentionConfig bounds how long security events are kept.
type RetentionConfig struct {
	Events time.Duration `koanf:"events"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggerConfig converts to the logging package's config.
func (l LoggingConfig) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}
