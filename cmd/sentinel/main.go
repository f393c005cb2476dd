// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package main is the entry point for the Sentinel daemon.
//
// Sentinel runs the security automation cycles of a game-server hosting
// panel on a schedule and serves the node ingestion API.
//
// # Startup
//
//  1. Configuration: defaults, optional YAML file, environment (koanf v2)
//  2. Storage: DuckDB tables and the TTL store (BadgerDB or in-memory)
//  3. Event bus: in-process, or NATS when NATS_URL is set
//  4. Engine: settings, event recorder, collaborators
//  5. Supervisor tree: one CycleService per enabled cycle, the
//     notification forwarder, and the HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops every
// service, the HTTP server drains in-flight requests, and storage is closed.
//
// # Example Usage
//
//	export DUCKDB_PATH=/var/lib/sentinel/sentinel.duckdb
//	export KV_PATH=/var/lib/sentinel/kv
//	export DAEMON_URL=http://127.0.0.1:8080
//	export DAEMON_TOKEN=...
//	export FIREWALL_DRY_RUN=false
//	./sentinel
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/sentinel/internal/api"
	"github.com/tomtom215/sentinel/internal/app"
	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/supervisor"
	"github.com/tomtom215/sentinel/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggerConfig())

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Sentinel stopped with an error")
	}
	logging.Info().Msg("Sentinel stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting Sentinel")

	a, err := app.New(ctx, cfg, app.Options{Forwarding: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	if cfg.Scheduler.Enabled {
		for _, svc := range cycleServices(cfg.Scheduler, cfg.Retention.Events, a.Engine) {
			tree.AddAutomationService(svc)
		}
	} else {
		logging.Info().Msg("Scheduler disabled (SCHEDULER_ENABLED=false); cycles run only via sentinelctl")
	}

	if a.ForwardsNotifications() {
		tree.AddMessagingService(services.NewNotificationForwarder(a.Bus, a.Webhook))
	}

	middleware := api.DefaultChiMiddlewareConfig()
	middleware.CORSAllowedOrigins = cfg.Server.CORSOrigins
	middleware.RateLimitRequests = cfg.Server.RateLimitReqs
	middleware.RateLimitWindow = cfg.Server.RateLimitWindow

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(api.Config{
			Token:      cfg.Server.APIToken,
			Middleware: middleware,
			Timeout:    cfg.Server.Timeout,
			Checks:     a.Checks(),
		}, a.Engine),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case serveErr = <-errCh:
	}
	for err := range errCh {
		if serveErr == nil {
			serveErr = err
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
