// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8085 {
		t.Errorf("Server = %s:%d, want 127.0.0.1:8085", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Path != "/data/sentinel.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.KV.Backend != KVBackendBadger {
		t.Errorf("KV.Backend = %q, want badger", cfg.KV.Backend)
	}
	if !cfg.Firewall.DryRun {
		t.Error("Firewall.DryRun should default to true")
	}
	if cfg.EventBus.NATSURL != "" {
		t.Errorf("EventBus.NATSURL = %q, want in-process default", cfg.EventBus.NATSURL)
	}
	if cfg.Scheduler.TrustInterval != 5*time.Minute {
		t.Errorf("Scheduler.TrustInterval = %v, want 5m", cfg.Scheduler.TrustInterval)
	}
	if cfg.Retention.Events != 720*time.Hour {
		t.Errorf("Retention.Events = %v, want 720h", cfg.Retention.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("KV_BACKEND", "memory")
	t.Setenv("NATS_URL", "nats://nats.internal:4222")
	t.Setenv("TRUST_INTERVAL", "90s")
	t.Setenv("CORS_ORIGINS", "https://panel.example.com, https://admin.example.com")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/sentinel")
	t.Setenv("WEBHOOK_HEADERS", "Authorization=Bearer a=b,X-Env=prod")
	t.Setenv("FIREWALL_DRY_RUN", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.KV.Backend != KVBackendMemory {
		t.Errorf("KV.Backend = %q", cfg.KV.Backend)
	}
	if cfg.EventBus.NATSURL != "nats://nats.internal:4222" {
		t.Errorf("EventBus.NATSURL = %q", cfg.EventBus.NATSURL)
	}
	if cfg.Scheduler.TrustInterval != 90*time.Second {
		t.Errorf("Scheduler.TrustInterval = %v, want 90s", cfg.Scheduler.TrustInterval)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://admin.example.com" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if got := cfg.Notifications.Headers["Authorization"]; got != "Bearer a=b" {
		t.Errorf("Authorization header = %q, want value split on the first '=' only", got)
	}
	if cfg.Notifications.Headers["X-Env"] != "prod" {
		t.Errorf("Notifications.Headers = %v", cfg.Notifications.Headers)
	}
	if cfg.Firewall.DryRun {
		t.Error("Firewall.DryRun should be false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Scheduler.ResourceInterval != time.Minute {
		t.Errorf("Scheduler.ResourceInterval = %v, want 1m", cfg.Scheduler.ResourceInterval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	yaml := `
server:
  port: 7000
kv:
  backend: memory
daemon:
  base_url: http://wings.internal:8080
scheduler:
  reputation_interval: 0s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7100 {
		t.Errorf("Server.Port = %d, env should win over file", cfg.Server.Port)
	}
	if cfg.KV.Backend != KVBackendMemory {
		t.Errorf("KV.Backend = %q, want memory from file", cfg.KV.Backend)
	}
	if cfg.Daemon.BaseURL != "http://wings.internal:8080" {
		t.Errorf("Daemon.BaseURL = %q", cfg.Daemon.BaseURL)
	}
	if cfg.Scheduler.ReputationInterval != 0 {
		t.Errorf("Scheduler.ReputationInterval = %v, want disabled", cfg.Scheduler.ReputationInterval)
	}
	if cfg.Scheduler.AdaptiveInterval != 5*time.Minute {
		t.Errorf("Scheduler.AdaptiveInterval = %v, want default 5m", cfg.Scheduler.AdaptiveInterval)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("KV_BACKEND", "redis")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "KV_BACKEND") {
		t.Errorf("Load error = %v, want KV_BACKEND validation error", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"DUCKDB_PATH", "database.path"},
		{"nats_url", "event_bus.nats_url"},
		{"SENTINEL_API_TOKEN", "server.api_token"},
		{"RESOURCE_INTERVAL", "scheduler.resource_interval"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
