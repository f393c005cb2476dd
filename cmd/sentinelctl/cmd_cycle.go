// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/sentinel/internal/engine"
)

func (c *cli) cycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one automation cycle",
	}

	var serverID int64
	var force bool
	scoped := func(sub *cobra.Command) *cobra.Command {
		sub.Flags().Int64Var(&serverID, "server", 0, "limit the cycle to one server id")
		sub.Flags().BoolVar(&force, "force", false, "act before the violation counter reaches its threshold")
		return sub
	}
	target := func() *int64 {
		if serverID <= 0 {
			return nil
		}
		return &serverID
	}

	var keep time.Duration

	retention := &cobra.Command{
		Use:   engine.CycleRetention,
		Short: "Prune old events and expired reputation indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				return r.RunRetention(ctx, keep)
			})
		},
	}
	retention.Flags().DurationVar(&keep, "keep", 0, "event retention (default: EVENT_RETENTION)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   engine.CycleAdaptive,
			Short: "Update anomaly baselines and tune the DDoS burst threshold",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
					return r.RunAdaptiveCycle(ctx)
				})
			},
		},
		scoped(&cobra.Command{
			Use:   engine.CycleTrust,
			Short: "Evaluate trust scores and escalate protection",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
					return r.RunTrustAutomation(ctx, target(), force)
				})
			},
		}),
		scoped(&cobra.Command{
			Use:   engine.CycleResource,
			Short: "Check resource usage and enforce abuse policy",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
					return r.RunResourceSafety(ctx, target(), force)
				})
			},
		}),
		&cobra.Command{
			Use:   engine.CycleReputation,
			Short: "Exchange indicators with the reputation network",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
					return r.RunReputationSync(ctx)
				})
			},
		},
		retention,
		&cobra.Command{
			Use:   "all",
			Short: "Run the adaptive, trust, resource and reputation cycles concurrently",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withRunner(cmd, runAllCycles)
			},
		},
	)
	return cmd
}

// runAllCycles runs the periodic cycles side by side, as the daemon's
// scheduler would. Cycles coordinate through the TTL store, not through
// each other. The first error cancels the rest.
func runAllCycles(ctx context.Context, r Runner) (any, error) {
	var mu sync.Mutex
	results := make(map[string]any, 4)
	store := func(name string, v any) {
		mu.Lock()
		results[name] = v
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.RunAdaptiveCycle(gctx)
		store(engine.CycleAdaptive, res)
		return err
	})
	g.Go(func() error {
		res, err := r.RunTrustAutomation(gctx, nil, false)
		store(engine.CycleTrust, res)
		return err
	})
	g.Go(func() error {
		res, err := r.RunResourceSafety(gctx, nil, false)
		store(engine.CycleResource, res)
		return err
	})
	g.Go(func() error {
		res, err := r.RunReputationSync(gctx)
		store(engine.CycleReputation, res)
		return err
	})
	err := g.Wait()
	return results, err
}
