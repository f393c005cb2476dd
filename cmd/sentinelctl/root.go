// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sentinel/internal/app"
	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/engine"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/resource"
	"github.com/tomtom215/sentinel/internal/simulate"
	"github.com/tomtom215/sentinel/internal/trust"
)

// errBlockDeploy is returned by scan when the verdict blocks deployment.
var errBlockDeploy = errors.New("scan verdict blocks deployment")

// Runner is the engine surface the CLI drives.
type Runner interface {
	RunDDoSProfile(ctx context.Context, profile string, whitelist []string) (engine.ProfileSummary, error)
	RunAdaptiveCycle(ctx context.Context) (engine.AdaptiveSummary, error)
	RunTrustAutomation(ctx context.Context, serverID *int64, force bool) (trust.Result, error)
	RunResourceSafety(ctx context.Context, serverID *int64, force bool) (resource.Result, error)
	RunNodeSecureScan(ctx context.Context, serverID int64, path string, skipNPM bool) (engine.ScanSummary, error)
	RunReputationSync(ctx context.Context) (reputation.Result, error)
	RunSimulation(ctx context.Context, typ string, intensity int) (simulate.Result, error)
	RunRetention(ctx context.Context, keep time.Duration) (engine.RetentionSummary, error)
	Quarantine(ctx context.Context, serverID int64, minutes int) (engine.QuarantineSummary, error)
	QuarantineStatus(ctx context.Context, serverID int64) (engine.QuarantineSummary, error)
	LookupIndicator(ctx context.Context, typ, value string) ([]reputation.Indicator, error)
	Settings(ctx context.Context) map[string]string
	SetSetting(ctx context.Context, key, value string) error
}

var _ Runner = (*engine.Engine)(nil)

// opener builds a Runner and returns its cleanup.
type opener func(ctx context.Context) (Runner, func() error, error)

// cli carries state shared by every subcommand.
type cli struct {
	open       opener
	jsonOutput bool
	configPath string
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Operate the Sentinel security automation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if c.configPath != "" {
				return os.Setenv(config.ConfigPathEnvVar, c.configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print results as JSON")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (overrides CONFIG_PATH)")

	root.AddCommand(
		c.cycleCmd(),
		c.ddosCmd(),
		c.scanCmd(),
		c.simulateCmd(),
		c.quarantineCmd(),
		c.indicatorCmd(),
		c.settingsCmd(),
	)
	return root
}

// withRunner opens the engine for the duration of fn. SIGINT cancels ctx.
func (c *cli) withRunner(cmd *cobra.Command, fn func(ctx context.Context, r Runner) (any, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Error closing engine")
		}
	}()

	out, err := fn(ctx, r)
	if out != nil {
		if perr := printResult(cmd.OutOrStdout(), out, c.jsonOutput); perr != nil {
			return perr
		}
	}
	return err
}

// openEngine loads configuration and assembles the engine.
func openEngine(ctx context.Context) (Runner, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.Logging.LoggerConfig())

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return retentionRunner{Engine: a.Engine, keep: cfg.Retention.Events}, a.Close, nil
}

// retentionRunner substitutes the configured retention when the flag is unset.
type retentionRunner struct {
	*engine.Engine
	keep time.Duration
}

func (r retentionRunner) RunRetention(ctx context.Context, keep time.Duration) (engine.RetentionSummary, error) {
	if keep <= 0 {
		keep = r.keep
	}
	return r.Engine.RunRetention(ctx, keep)
}
