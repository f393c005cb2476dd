// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package config loads the process configuration for the Sentinel daemon.

Process configuration covers where things live and how the daemon talks to
them: the HTTP listener, DuckDB and Badger paths, the node daemon API, the
firewall shim, NATS and the webhook notifier, and cycle intervals. Security
behavior (thresholds, toggles, DDoS profiles) is not configured here; it is
read at runtime from the settings store.

# Configuration Sources

Sources are layered, later ones winning:
  - Built-in defaults
  - An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/sentinel/config.yaml
  - Environment variables (only the mapped names below)

# Environment Variables

HTTP API:
  - HTTP_HOST: Bind address (default: 127.0.0.1)
  - HTTP_PORT: Listen port (default: 8085)
  - HTTP_TIMEOUT: Request timeout (default: 30s)
  - RATE_LIMIT_REQS / RATE_LIMIT_WINDOW: Per-IP limit (default: 120 per 1m)
  - CORS_ORIGINS: Comma-separated allowed origins (default: none)
  - SENTINEL_API_TOKEN: Bearer token for /api routes; required off loopback

Storage:
  - DUCKDB_PATH: Event and state database (default: /data/sentinel.duckdb)
  - DUCKDB_MAX_MEMORY, DUCKDB_THREADS: DuckDB tuning
  - KV_BACKEND: badger or memory (default: badger)
  - KV_PATH: Badger directory (default: /data/kv)
  - SETTINGS_CACHE_TTL: Settings read cache (default: 30s)
  - EVENT_RETENTION: Security event retention (default: 720h)

Node daemon and firewall:
  - DAEMON_URL, DAEMON_TOKEN, DAEMON_TIMEOUT, DAEMON_RPS, DAEMON_BURST
  - FIREWALL_BINARY (default: iptables), FIREWALL_CHAIN (default: INPUT)
  - FIREWALL_DRY_RUN: Log rules instead of applying them (default: true)
  - GEO_URL: ip-api style country lookup endpoint (default: disabled)

Event bus and notifications:
  - NATS_URL: Publish events to NATS (default: in-process only)
  - WEBHOOK_URL, WEBHOOK_HEADERS ("K=V,K2=V2"), WEBHOOK_RATE_LIMIT

Scheduler:
  - SCHEDULER_ENABLED (default: true)
  - ADAPTIVE_INTERVAL, TRUST_INTERVAL, RESOURCE_INTERVAL,
    REPUTATION_INTERVAL, RETENTION_INTERVAL: 0 disables a cycle
  - CYCLE_TIMEOUT: Upper bound for one cycle run (default: 2m)

Logging:
  - LOG_LEVEL (default: info), LOG_FORMAT (json or console), LOG_CALLER

# Usage

	cfg, err := config.Load()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
*/
package config
