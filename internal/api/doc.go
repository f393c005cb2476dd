// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package api provides the HTTP ingestion API of the Sentinel daemon using the
Chi router.

Node agents and the panel push data in; operators read state out:

	POST /api/v1/node/payload/inspect     console and file payload inspection
	POST /api/v1/node/runtime/memory      runtime memory samples
	GET  /api/v1/node/servers/{id}/score  composite node security score
	GET  /api/v1/servers/{id}/quarantine  quarantine status
	POST /api/v1/servers/{id}/quarantine  operator quarantine {"minutes": n}
	GET  /api/v1/reputation/indicators    ?type=ip&value=203.0.113.5
	GET  /api/v1/health/live              liveness
	GET  /api/v1/health/ready             readiness (storage checks)
	GET  /metrics                         Prometheus

Every /api/v1 route except health is rate limited per IP (go-chi/httprate)
and, when a token is configured, requires "Authorization: Bearer <token>".
Responses use the APIResponse envelope; validation failures return 400 with
per-field details.
*/
package api
