// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package services provides suture.Service implementations for the Sentinel
daemon:

  - CycleService runs one automation cycle on a fixed interval
  - NotificationForwarder moves bus notifications to the webhook
  - HTTPServerService runs the API server with graceful shutdown

Every service returns ctx.Err() on cancellation so the supervisor treats the
stop as clean. Services that cannot run in the current configuration return
suture.ErrDoNotRestart.
*/
package services
