// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package supervisor provides process supervision for the Sentinel daemon using
suture v4.

The tree isolates failures by layer:

	RootSupervisor ("sentinel")
	├── AutomationSupervisor ("automation-layer")
	│   ├── CycleService "adaptive"
	│   ├── CycleService "trust"
	│   ├── CycleService "resource"
	│   ├── CycleService "reputation"
	│   └── CycleService "retention"
	├── MessagingSupervisor ("messaging-layer")
	│   └── NotificationForwarder (in-process bus only)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Services restart with suture's backoff. Supervisor events are logged through
sutureslog on top of the zerolog slog adapter.

# Usage

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAutomationService(services.NewCycleService("trust", 5*time.Minute, 2*time.Minute, runTrust))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)
*/
package supervisor
