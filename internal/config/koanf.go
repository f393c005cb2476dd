// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/sentinel/internal/database"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/remote"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinel/config.yaml",
	"/etc/sentinel/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied. Defaults are
// loaded first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8085,
			Timeout:         30 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Database: database.Config{
			Path:      "/data/sentinel.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		KV: KVConfig{
			Backend: KVBackendBadger,
			Path:    "/data/kv",
			Prefix:  "sentinel:",
		},
		Settings: SettingsConfig{
			CacheTTL: 30 * time.Second,
		},
		Daemon:        remote.DefaultConfig(),
		Firewall:      remote.DefaultFirewallConfig(),
		Geo:           remote.GeoConfig{CacheTTL: 24 * time.Hour, PerMinute: 45},
		EventBus:      eventbus.DefaultConfig(),
		Notifications: eventbus.WebhookConfig{RateLimit: 500 * time.Millisecond, Timeout: 5 * time.Second},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			AdaptiveInterval:   5 * time.Minute,
			TrustInterval:      5 * time.Minute,
			ResourceInterval:   time.Minute,
			ReputationInterval: 15 * time.Minute,
			RetentionInterval:  time.Hour,
			CycleTimeout:       2 * time.Minute,
		},
		Retention: RetentionConfig{
			Events: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config File: optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment Variables: override any mapped setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DUCKDB_PATH -> database.path, NATS_URL -> event_bus.nats_url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if configPath != "" {
		logging.Debug().Str("path", configPath).Msg("Loaded config file")
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// mapConfigPaths are parsed as comma-separated key=value pairs when set from env.
var mapConfigPaths = []string{
	"notifications.headers",
}

// processSliceFields converts comma-separated env strings into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// processMapFields converts "Authorization=Bearer xyz,X-Env=prod" into a map.
// The value may contain '='; only the first one splits.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		out := make(map[string]string)
		for _, item := range strings.Split(strVal, ",") {
			key, value, found := strings.Cut(strings.TrimSpace(item), "=")
			key = strings.TrimSpace(key)
			if !found || key == "" {
				continue
			}
			out[key] = strings.TrimSpace(value)
		}
		// Delete first so Set replaces the string rather than merging into it.
		k.Delete(path)
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
var envMappings = map[string]string{
	// HTTP API
	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_timeout":       "server.timeout",
	"rate_limit_reqs":    "server.rate_limit_requests",
	"rate_limit_window":  "server.rate_limit_window",
	"cors_origins":       "server.cors_origins",
	"sentinel_api_token": "server.api_token",

	// Storage
	"duckdb_path":        "database.path",
	"duckdb_max_memory":  "database.max_memory",
	"duckdb_threads":     "database.threads",
	"kv_backend":         "kv.backend",
	"kv_path":            "kv.path",
	"kv_prefix":          "kv.prefix",
	"settings_cache_ttl": "settings.cache_ttl",

	// Node daemon and firewall
	"daemon_url":       "daemon.base_url",
	"daemon_token":     "daemon.token",
	"daemon_timeout":   "daemon.timeout",
	"daemon_rps":       "daemon.requests_per_second",
	"daemon_burst":     "daemon.burst",
	"firewall_binary":  "firewall.binary",
	"firewall_chain":   "firewall.chain",
	"firewall_dry_run": "firewall.dry_run",
	"firewall_timeout": "firewall.timeout",
	"geo_url":          "geo.base_url",
	"geo_cache_ttl":    "geo.cache_ttl",
	"geo_per_minute":   "geo.per_minute",

	// Event bus and notifications
	"nats_url":              "event_bus.nats_url",
	"nats_max_reconnects":   "event_bus.max_reconnects",
	"nats_reconnect_wait":   "event_bus.reconnect_wait",
	"event_buffer_size":     "event_bus.buffer_size",
	"event_publish_timeout": "event_bus.publish_timeout",
	"webhook_url":           "notifications.url",
	"webhook_headers":       "notifications.headers",
	"webhook_rate_limit":    "notifications.rate_limit",
	"webhook_timeout":       "notifications.timeout",

	// Scheduler
	"scheduler_enabled":   "scheduler.enabled",
	"adaptive_interval":   "scheduler.adaptive_interval",
	"trust_interval":      "scheduler.trust_interval",
	"resource_interval":   "scheduler.resource_interval",
	"reputation_interval": "scheduler.reputation_interval",
	"retention_interval":  "scheduler.retention_interval",
	"cycle_timeout":       "scheduler.cycle_timeout",
	"event_retention":     "retention.events",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its config path.
// Unmapped variables return "" and are skipped so the rest of the
// environment cannot leak into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
