// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package testinfra provides shared test fixtures for the automation loops.
//
// Env wires every collaborator of a cycle against in-memory implementations
// driven by one controllable clock:
//
//	func TestQuarantine(t *testing.T) {
//	    env := testinfra.NewEnv(t, map[string]string{
//	        settings.TrustQuarantineThreshold: "30",
//	    })
//	    env.Directory.Put(fleet.Server{ID: 1})
//	    env.Reputations.Put(fleet.Reputation{ServerID: 1, Trust: 25, CalculatedAt: env.Clock.Now()})
//	    // build the loop from env.Settings, env.Recorder, env.KV ...
//	}
//
// CaptureServer records HTTP requests for clients that talk to remote
// peers (server-control daemon, reputation network, webhooks).
package testinfra
