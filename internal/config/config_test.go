// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"public bind without token", func(c *Config) { c.Server.Host = "0.0.0.0" }, "SENTINEL_API_TOKEN is required"},
		{"public bind with token", func(c *Config) {
			c.Server.Host = "0.0.0.0"
			c.Server.APIToken = "0123456789abcdef"
		}, ""},
		{"short token", func(c *Config) { c.Server.APIToken = "short" }, "at least 16"},
		{"localhost without token", func(c *Config) { c.Server.Host = "localhost" }, ""},
		{"ipv6 loopback without token", func(c *Config) { c.Server.Host = "::1" }, ""},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "database"},
		{"badger without path", func(c *Config) { c.KV.Path = "" }, "KV_PATH"},
		{"memory kv without path", func(c *Config) {
			c.KV.Backend = KVBackendMemory
			c.KV.Path = ""
		}, ""},
		{"daemon url with path", func(c *Config) { c.Daemon.BaseURL = "http://wings:8080/api" }, "base URL only"},
		{"daemon url bad scheme", func(c *Config) { c.Daemon.BaseURL = "ftp://wings" }, "http or https"},
		{"geo url with path", func(c *Config) { c.Geo.BaseURL = "http://ip-api.com/json" }, ""},
		{"nats bad scheme", func(c *Config) { c.EventBus.NATSURL = "http://nats:4222" }, "NATS_URL"},
		{"nats ok", func(c *Config) { c.EventBus.NATSURL = "nats://nats:4222" }, ""},
		{"webhook no host", func(c *Config) { c.Notifications.URL = "https://" }, "WEBHOOK_URL"},
		{"firewall chain missing", func(c *Config) { c.Firewall.Chain = "" }, "FIREWALL_CHAIN"},
		{"interval too short", func(c *Config) { c.Scheduler.TrustInterval = time.Second }, "TRUST_INTERVAL"},
		{"interval disabled", func(c *Config) { c.Scheduler.TrustInterval = 0 }, ""},
		{"retention too short", func(c *Config) { c.Retention.Events = time.Minute }, "EVENT_RETENTION"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	if got := (ServerConfig{Host: "::1", Port: 8085}).Addr(); got != "[::1]:8085" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoggerConfig(t *testing.T) {
	got := LoggingConfig{Level: "warn", Format: "console", Caller: true}.LoggerConfig()
	if got.Level != "warn" || got.Format != "console" || !got.Caller || got.Output == nil {
		t.Errorf("LoggerConfig() = %+v", got)
	}
}
