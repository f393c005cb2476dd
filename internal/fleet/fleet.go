// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package fleet is the engine's view of the hosting panel: the directory of
// game servers and their owners, and the per-server reputation scores the
// trust and anomaly loops read.
package fleet

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrServerNotFound is returned for unknown or deleted servers.
var ErrServerNotFound = errors.New("fleet: server not found")

// ErrUserNotFound is returned for unknown or deleted users.
var ErrUserNotFound = errors.New("fleet: user not found")

// Limits are the resource allocations of a server. CPUPercent is expressed
// the way game panels do: 100 per core, so 400 means four cores.
type Limits struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes int64   `json:"memory_bytes"`
	DiskBytes   int64   `json:"disk_bytes"`
}

// Cores returns the number of cores implied by the CPU limit, at least 1.
func (l Limits) Cores() float64 {
	if l.CPUPercent <= 0 {
		return 1
	}
	return math.Max(1, l.CPUPercent/100)
}

// Server is a hosted game server.
type Server struct {
	ID          int64  `json:"id"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	OwnerID     int64  `json:"owner_id"`
	OwnerIsRoot bool   `json:"owner_is_root"`
	OwnerLastIP string `json:"owner_last_ip,omitempty"`
	Suspended   bool   `json:"suspended"`
	Limits      Limits `json:"limits"`
}

// Directory lists and mutates servers and users.
type Directory interface {
	// ListServers returns up to limit servers with ID > afterID, ordered by ID.
	ListServers(ctx context.Context, afterID int64, limit int) ([]Server, error)
	GetServer(ctx context.Context, id int64) (*Server, error)
	ListServersByOwner(ctx context.Context, ownerID int64) ([]Server, error)
	SetSuspended(ctx context.Context, id int64, suspended bool) error
	DeleteServer(ctx context.Context, id int64) error
	DeleteUser(ctx context.Context, userID int64) error
}

// Reputation holds a server's composite scores, each 0..100.
type Reputation struct {
	ServerID     int64     `json:"server_id"`
	Stability    float64   `json:"stability"`
	Uptime       float64   `json:"uptime"`
	Abuse        float64   `json:"abuse"`
	Trust        float64   `json:"trust"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// ReputationProvider reads and recalculates reputation scores.
type ReputationProvider interface {
	// ListReputations returns up to limit rows with ServerID > afterID.
	ListReputations(ctx context.Context, afterID int64, limit int) ([]Reputation, error)
	GetReputation(ctx context.Context, serverID int64) (*Reputation, error)
	Recalculate(ctx context.Context, serverID int64) (*Reputation, error)
}

// ComputeTrust combines stability, uptime and abuse into the trust score.
func ComputeTrust(stability, uptime, abuse float64) float64 {
	t := 0.35*clamp100(stability) + 0.25*clamp100(uptime) + 0.40*(100-clamp100(abuse))
	return math.Round(clamp100(t)*100) / 100
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// EachServer pages through dir, calling fn for every server. Iteration stops
// at the first error returned by the directory or by fn.
func EachServer(ctx context.Context, dir Directory, pageSize int, fn func(Server) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := dir.ListServers(ctx, after, pageSize)
		if err != nil {
			return err
		}
		for _, s := range page {
			if err := fn(s); err != nil {
				return err
			}
			after = s.ID
		}
		if len(page) < pageSize {
			return nil
		}
	}
}
