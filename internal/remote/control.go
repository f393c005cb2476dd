// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package remote holds the clients for collaborators outside the panel
// database: the node daemon that runs game servers, the host firewall, and
// the IP geolocation service.
package remote

import (
	"context"
	"errors"

	"github.com/tomtom215/sentinel/internal/fleet"
)

var (
	// ErrUnavailable is returned when the daemon cannot be reached or the
	// circuit to it is open.
	ErrUnavailable = errors.New("remote: daemon unavailable")

	// ErrInvalidIP is returned by firewalls for unparsable addresses.
	ErrInvalidIP = errors.New("remote: invalid ip address")
)

// Utilization is a live resource reading for one server.
type Utilization struct {
	State string `json:"state"`
	// CPUPercent is absolute CPU usage, 100 per fully used core.
	CPUPercent  float64 `json:"cpu_absolute"`
	MemoryBytes int64   `json:"memory_bytes"`
	DiskBytes   int64   `json:"disk_bytes"`
	UptimeMs    int64   `json:"uptime"`
}

// ServerControl reads utilization and changes the power state of servers.
type ServerControl interface {
	Utilization(ctx context.Context, srv fleet.Server) (*Utilization, error)
	// Stop asks the server to shut down gracefully.
	Stop(ctx context.Context, srv fleet.Server) error
	// Kill terminates the server process.
	Kill(ctx context.Context, srv fleet.Server) error
}

// Firewall bans and unbans source addresses on the host.
type Firewall interface {
	BanIP(ctx context.Context, ip, reason string) error
	UnbanIP(ctx context.Context, ip string) error
}
