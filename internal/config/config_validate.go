// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"fmt"
	"net"
	"time"

	"github.com/tomtom215/sentinel/internal/validation"
)

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateStorage,
		c.validateRemote,
		c.validateEventBus,
		c.validateScheduler,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQS must not be negative")
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when RATE_LIMIT_REQS is set")
	}
	if c.Server.APIToken == "" && !isLoopback(c.Server.Host) {
		return fmt.Errorf("SENTINEL_API_TOKEN is required when HTTP_HOST (%s) is not a loopback address", c.Server.Host)
	}
	if c.Server.APIToken != "" && len(c.Server.APIToken) < 16 {
		return fmt.Errorf("SENTINEL_API_TOKEN must be at least 16 characters")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if err := validation.Struct(c.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	switch c.KV.Backend {
	case KVBackendMemory:
	case KVBackendBadger:
		if c.KV.Path == "" {
			return fmt.Errorf("KV_PATH is required for the badger backend")
		}
	default:
		return fmt.Errorf("KV_BACKEND must be %q or %q, got %q", KVBackendBadger, KVBackendMemory, c.KV.Backend)
	}
	if c.Settings.CacheTTL < 0 {
		return fmt.Errorf("SETTINGS_CACHE_TTL must not be negative")
	}
	if c.Retention.Events < time.Hour {
		return fmt.Errorf("EVENT_RETENTION must be at least 1h, got %s", c.Retention.Events)
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Daemon.BaseURL != "" {
		if err := validateHTTPURL(c.Daemon.BaseURL, "DAEMON_URL"); err != nil {
			return err
		}
	}
	if c.Daemon.RequestsPerSecond < 0 {
		return fmt.Errorf("DAEMON_RPS must not be negative")
	}
	if c.Firewall.Binary == "" || c.Firewall.Chain == "" {
		return fmt.Errorf("FIREWALL_BINARY and FIREWALL_CHAIN are required")
	}
	if c.Firewall.Timeout <= 0 {
		return fmt.Errorf("FIREWALL_TIMEOUT must be positive")
	}
	if c.Geo.BaseURL != "" {
		if err := validateEndpointURL(c.Geo.BaseURL, "GEO_URL"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateEventBus() error {
	if c.EventBus.NATSURL != "" {
		if err := validateNATSURL(c.EventBus.NATSURL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
	}
	if c.EventBus.BufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be positive")
	}
	if c.Notifications.URL != "" {
		if err := validateEndpointURL(c.Notifications.URL, "WEBHOOK_URL"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	intervals := map[string]time.Duration{
		"ADAPTIVE_INTERVAL":   s.AdaptiveInterval,
		"TRUST_INTERVAL":      s.TrustInterval,
		"RESOURCE_INTERVAL":   s.ResourceInterval,
		"REPUTATION_INTERVAL": s.ReputationInterval,
		"RETENTION_INTERVAL":  s.RetentionInterval,
	}
	for name, d := range intervals {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
		if d > 0 && d < 10*time.Second {
			return fmt.Errorf("%s must be at least 10s, got %s", name, d)
		}
	}
	if s.Enabled && s.CycleTimeout <= 0 {
		return fmt.Errorf("CYCLE_TIMEOUT must be positive when the scheduler is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
