// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package app assembles the automation engine and its collaborators from a
// loaded configuration. Both the daemon and the operator CLI build through
// it so they act on the same stores.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/sentinel/internal/anomaly"
	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/database"
	"github.com/tomtom215/sentinel/internal/engine"
	"github.com/tomtom215/sentinel/internal/eventbus"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/fleet"
	"github.com/tomtom215/sentinel/internal/kv"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/remote"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/settings"
)

// Options tune assembly for the calling binary.
type Options struct {
	// Forwarding means the caller runs a NotificationForwarder, so
	// notifications go through the in-process bus instead of straight to
	// the webhook.
	Forwarding bool
}

// tableCreator is implemented by every DuckDB store.
type tableCreator interface {
	CreateTable(ctx context.Context) error
}

// App owns the engine and everything it depends on.
type App struct {
	Config   *config.Config
	Engine   *engine.Engine
	DB       *sql.DB
	KV       kv.Store
	Bus      *eventbus.Bus
	Settings *settings.Accessor
	Webhook  *eventbus.WebhookNotifier

	forwarding bool
	closers    []func() error
}

// New opens storage, creates missing tables and wires the engine. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.DB, err = database.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	a.onClose(a.DB.Close)

	settingsStore := settings.NewDuckDBStore(a.DB)
	eventStore := eventlog.NewDuckDBStore(a.DB)
	baselineStore := anomaly.NewDuckDBStore(a.DB)
	fleetStore := fleet.NewDuckDBStore(a.DB)
	indicatorStore := reputation.NewDuckDBStore(a.DB)

	for _, store := range []tableCreator{settingsStore, eventStore, baselineStore, fleetStore, indicatorStore} {
		if err = store.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	if a.KV, err = a.openKV(); err != nil {
		return nil, err
	}

	if a.Bus, err = eventbus.New(cfg.EventBus); err != nil {
		return nil, err
	}
	a.onClose(a.Bus.Close)

	a.Settings = settings.NewAccessor(settingsStore, cfg.Settings.CacheTTL)
	a.onClose(func() error { a.Settings.Close(); return nil })

	geo := remote.NewGeoResolver(cfg.Geo)
	a.onClose(func() error { geo.Close(); return nil })

	recorder := eventlog.NewRecorder(eventStore,
		eventlog.WithPublisher(a.Bus),
		eventlog.WithGeoResolver(geo),
	)

	a.Webhook = eventbus.NewWebhookNotifier(cfg.Notifications)
	a.forwarding = opts.Forwarding && cfg.EventBus.NATSURL == ""

	a.Engine = engine.New(engine.Deps{
		Settings:    a.Settings,
		Events:      recorder,
		KV:          a.KV,
		Baselines:   baselineStore,
		Directory:   fleetStore,
		Reputations: fleetStore,
		Control:     remote.NewHTTPControl(cfg.Daemon),
		Firewall:    remote.NewExecFirewall(cfg.Firewall),
		Indicators:  indicatorStore,
		Notifier:    a.notifier(),
		HTTPClient:  &http.Client{Timeout: cfg.Daemon.Timeout},
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("kv_backend", cfg.KV.Backend).
		Bool("nats", cfg.EventBus.NATSURL != "").
		Bool("webhook", cfg.Notifications.URL != "").
		Bool("firewall_dry_run", cfg.Firewall.DryRun).
		Msg("Engine assembled")
	return a, nil
}

func (a *App) openKV() (kv.Store, error) {
	if a.Config.KV.Backend == config.KVBackendMemory {
		store := kv.NewMemoryStore()
		a.onClose(store.Close)
		return store, nil
	}
	db, err := kv.OpenBadger(a.Config.KV.Path)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", a.Config.KV.Path, err)
	}
	a.onClose(db.Close)
	store := kv.NewBadgerStore(db, a.Config.KV.Prefix)
	a.onClose(store.Close)
	return store, nil
}

// notifier picks the delivery path for operator notifications:
//
//	NATS bus           publish to the subject and post the webhook directly
//	in-process, fwd    publish only; the forwarder posts the webhook
//	in-process, no fwd post the webhook directly
func (a *App) notifier() eventbus.Notifier {
	switch {
	case a.Config.EventBus.NATSURL != "":
		return eventbus.MultiNotifier{eventbus.NewBusNotifier(a.Bus), a.Webhook}
	case a.forwarding:
		return eventbus.NewBusNotifier(a.Bus)
	default:
		return a.Webhook
	}
}

// ForwardsNotifications reports whether the caller must run a forwarder
// from the bus to Webhook.
func (a *App) ForwardsNotifications() bool {
	return a.forwarding
}

// Checks returns the readiness checks for the health endpoint.
func (a *App) Checks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"duckdb": a.DB.PingContext,
		"kv": func(ctx context.Context) error {
			_, _, err := a.KV.Get(ctx, "health:probe")
			return err
		},
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
