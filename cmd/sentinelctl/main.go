// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package main is sentinelctl, the operator CLI of Sentinel.
//
// Every automation entry point is a subcommand. sentinelctl builds the
// engine from the same configuration as the daemon (CONFIG_PATH plus
// environment), so it can drive the cycles from cron when the daemon's
// scheduler is disabled:
//
//	*/5 * * * * sentinelctl cycle trust
//	*   * * * * sentinelctl cycle resource
//
// DuckDB allows a single writer per file; stop the daemon before running
// sentinelctl against its database.
//
// Exit codes: 0 success, 1 error, 2 scan verdict blocks deployment.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCmd(openEngine).Execute()
	switch {
	case err == nil:
	case errors.Is(err, errBlockDeploy):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
