// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/sentinel/internal/database"
)

const fleetSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		is_root BOOLEAN NOT NULL DEFAULT false,
		last_ip TEXT,
		deleted_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS servers (
		id BIGINT PRIMARY KEY,
		uuid TEXT NOT NULL,
		name TEXT NOT NULL,
		owner_id BIGINT NOT NULL,
		suspended BOOLEAN NOT NULL DEFAULT false,
		cpu_limit DOUBLE NOT NULL DEFAULT 100,
		memory_limit BIGINT NOT NULL DEFAULT 0,
		disk_limit BIGINT NOT NULL DEFAULT 0,
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_servers_owner ON servers(owner_id);

	CREATE TABLE IF NOT EXISTS server_reputation (
		server_id BIGINT PRIMARY KEY,
		stability DOUBLE NOT NULL DEFAULT 100,
		uptime DOUBLE NOT NULL DEFAULT 100,
		abuse DOUBLE NOT NULL DEFAULT 0,
		trust DOUBLE NOT NULL DEFAULT 100,
		calculated_at TIMESTAMPTZ NOT NULL
	)
`

const serverColumns = `
	s.id, s.uuid, s.name, s.owner_id, COALESCE(u.is_root, false), COALESCE(u.last_ip, ''),
	s.suspended, s.cpu_limit, s.memory_limit, s.disk_limit`

const serverFrom = ` FROM servers s LEFT JOIN users u ON u.id = s.owner_id WHERE s.deleted_at IS NULL`

// DuckDBStore implements Directory and ReputationProvider over the panel
// mirror tables. Recalculate reads the security_events table, so the event
// log schema must exist in the same database.
type DuckDBStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDuckDBStore creates the store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db, now: time.Now}
}

// CreateTable creates the users, servers and server_reputation tables.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	return database.ExecSchema(ctx, s.db, "servers", fleetSchema)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (Server, error) {
	var srv Server
	err := row.Scan(&srv.ID, &srv.UUID, &srv.Name, &srv.OwnerID, &srv.OwnerIsRoot, &srv.OwnerLastIP,
		&srv.Suspended, &srv.Limits.CPUPercent, &srv.Limits.MemoryBytes, &srv.Limits.DiskBytes)
	return srv, err
}

func (s *DuckDBStore) queryServers(ctx context.Context, query string, args ...any) ([]Server, error) {
	var out []Server
	err := database.Timed("SELECT", "servers", func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			srv, err := scanServer(rows)
			if err != nil {
				return err
			}
			out = append(out, srv)
		}
		return rows.Err()
	})
	return out, err
}

// ListServers implements Directory.
func (s *DuckDBStore) ListServers(ctx context.Context, afterID int64, limit int) ([]Server, error) {
	return s.queryServers(ctx, "SELECT"+serverColumns+serverFrom+" AND s.id > ? ORDER BY s.id LIMIT ?", afterID, limit)
}

// GetServer implements Directory.
func (s *DuckDBStore) GetServer(ctx context.Context, id int64) (*Server, error) {
	var srv Server
	err := database.Timed("SELECT", "servers", func() error {
		var err error
		srv, err = scanServer(s.db.QueryRowContext(ctx, "SELECT"+serverColumns+serverFrom+" AND s.id = ?", id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &srv, nil
}

// ListServersByOwner implements Directory.
func (s *DuckDBStore) ListServersByOwner(ctx context.Context, ownerID int64) ([]Server, error) {
	return s.queryServers(ctx, "SELECT"+serverColumns+serverFrom+" AND s.owner_id = ? ORDER BY s.id", ownerID)
}

func (s *DuckDBStore) execOne(ctx context.Context, table string, notFound error, query string, args ...any) error {
	return database.Timed("UPDATE", table, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound
		}
		return nil
	})
}

// SetSuspended implements Directory.
func (s *DuckDBStore) SetSuspended(ctx context.Context, id int64, suspended bool) error {
	return s.execOne(ctx, "servers", ErrServerNotFound,
		"UPDATE servers SET suspended = ? WHERE id = ? AND deleted_at IS NULL", suspended, id)
}

// DeleteServer implements Directory. Rows are soft-deleted.
func (s *DuckDBStore) DeleteServer(ctx context.Context, id int64) error {
	return s.execOne(ctx, "servers", ErrServerNotFound,
		"UPDATE servers SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", s.now().UTC(), id)
}

// DeleteUser implements Directory. Rows are soft-deleted.
func (s *DuckDBStore) DeleteUser(ctx context.Context, userID int64) error {
	return s.execOne(ctx, "users", ErrUserNotFound,
		"UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", s.now().UTC(), userID)
}

// ListReputations implements ReputationProvider.
func (s *DuckDBStore) ListReputations(ctx context.Context, afterID int64, limit int) ([]Reputation, error) {
	var out []Reputation
	err := database.Timed("SELECT", "server_reputation", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT r.server_id, r.stability, r.uptime, r.abuse, r.trust, r.calculated_at
			FROM server_reputation r JOIN servers sv ON sv.id = r.server_id AND sv.deleted_at IS NULL
			WHERE r.server_id > ? ORDER BY r.server_id LIMIT ?`, afterID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r Reputation
			if err := rows.Scan(&r.ServerID, &r.Stability, &r.Uptime, &r.Abuse, &r.Trust, &r.CalculatedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// GetReputation implements ReputationProvider.
func (s *DuckDBStore) GetReputation(ctx context.Context, serverID int64) (*Reputation, error) {
	var r Reputation
	err := database.Timed("SELECT", "server_reputation", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT server_id, stability, uptime, abuse, trust, calculated_at
			FROM server_reputation WHERE server_id = ?`, serverID,
		).Scan(&r.ServerID, &r.Stability, &r.Uptime, &r.Abuse, &r.Trust, &r.CalculatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Recalculate implements ReputationProvider. Abuse and stability are derived
// from the last 24 hours of security events for the server; uptime is kept.
func (s *DuckDBStore) Recalculate(ctx context.Context, serverID int64) (*Reputation, error) {
	since := s.now().Add(-24 * time.Hour)

	var medium, high, critical, failures int64
	err := database.Timed("SELECT", "security_events", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE risk_level = 'medium'),
				COUNT(*) FILTER (WHERE risk_level = 'high'),
				COUNT(*) FILTER (WHERE risk_level = 'critical'),
				COUNT(*) FILTER (WHERE event_type IN ('resource_stats_failed', 'resource_violation'))
			FROM security_events WHERE server_id = ? AND created_at >= ?`, serverID, since,
		).Scan(&medium, &high, &critical, &failures)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events for server %d: %w", serverID, err)
	}

	uptime := 100.0
	if existing, err := s.GetReputation(ctx, serverID); err == nil {
		uptime = existing.Uptime
	}

	r := Reputation{
		ServerID:     serverID,
		Abuse:        clamp100(float64(medium) + 5*float64(high) + 15*float64(critical)),
		Stability:    clamp100(100 - 10*float64(failures)),
		Uptime:       uptime,
		CalculatedAt: s.now().UTC(),
	}
	r.Trust = ComputeTrust(r.Stability, r.Uptime, r.Abuse)

	err = database.Timed("UPSERT", "server_reputation", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO server_reputation (server_id, stability, uptime, abuse, trust, calculated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (server_id) DO UPDATE SET
				stability = excluded.stability, uptime = excluded.uptime, abuse = excluded.abuse,
				trust = excluded.trust, calculated_at = excluded.calculated_at`,
			r.ServerID, r.Stability, r.Uptime, r.Abuse, r.Trust, r.CalculatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}
