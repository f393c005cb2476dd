// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func parseServerID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid server id %q", arg)
	}
	return id, nil
}

func (c *cli) ddosCmd() *cobra.Command {
	var whitelist []string
	cmd := &cobra.Command{
		Use:   "ddos <profile>",
		Short: "Apply a DDoS protection profile (normal, elevated, under_attack)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				return r.RunDDoSProfile(ctx, args[0], whitelist)
			})
		},
	}
	cmd.Flags().StringSliceVar(&whitelist, "whitelist", nil, "IPs or CIDRs never rate limited (replaces the stored list)")
	return cmd
}

func (c *cli) scanCmd() *cobra.Command {
	var path string
	var skipNPM bool
	cmd := &cobra.Command{
		Use:   "scan <server-id>",
		Short: "Scan a Node.js server tree for secrets, unsafe runtime use and vulnerable packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseServerID(args[0])
			if err != nil {
				return err
			}
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				res, err := r.RunNodeSecureScan(ctx, id, path, skipNPM)
				if err == nil && res.BlockDeploy {
					err = errBlockDeploy
				}
				return res, err
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "scan root (default: node_server_root_template)")
	cmd.Flags().BoolVar(&skipNPM, "skip-npm", false, "skip the package manifest audit")
	return cmd
}

func (c *cli) simulateCmd() *cobra.Command {
	var intensity int
	cmd := &cobra.Command{
		Use:   "simulate <bruteforce|api_abuse|burst|priv_escalation>",
		Short: "Write synthetic attack events to exercise the automation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				return r.RunSimulation(ctx, args[0], intensity)
			})
		},
	}
	cmd.Flags().IntVar(&intensity, "intensity", 25, "number of events (1-5000)")
	return cmd
}

func (c *cli) quarantineCmd() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "quarantine <server-id>",
		Short: "Show or set the quarantine flag of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseServerID(args[0])
			if err != nil {
				return err
			}
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				if minutes > 0 {
					return r.Quarantine(ctx, id, minutes)
				}
				return r.QuarantineStatus(ctx, id)
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "quarantine for this many minutes (0 shows the status)")
	return cmd
}

func (c *cli) indicatorCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "indicator <value>",
		Short: "Look up active reputation network indicators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				return r.LookupIndicator(ctx, typ, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "ip", "indicator type")
	return cmd
}

func (c *cli) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				return r.Settings(ctx), nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRunner(cmd, func(ctx context.Context, r Runner) (any, error) {
				if err := r.SetSetting(ctx, args[0], args[1]); err != nil {
					return nil, err
				}
				return map[string]string{args[0]: r.Settings(ctx)[args[0]]}, nil
			})
		},
	})
	return cmd
}
