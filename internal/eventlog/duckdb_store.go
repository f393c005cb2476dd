// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/database"
)

const eventsSchema = `
	CREATE TABLE IF NOT EXISTS security_events (
		id TEXT PRIMARY KEY,
		actor_user_id BIGINT,
		server_id BIGINT,
		ip TEXT,
		event_type TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		risk_rank INTEGER NOT NULL,
		meta JSON,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_security_events_server ON security_events(server_id);
	CREATE INDEX IF NOT EXISTS idx_security_events_ip ON security_events(ip);

	CREATE TABLE IF NOT EXISTS risk_snapshots (
		identifier TEXT PRIMARY KEY,
		risk_score INTEGER NOT NULL DEFAULT 0,
		risk_mode TEXT NOT NULL DEFAULT 'normal',
		geo_country TEXT,
		last_seen_at TIMESTAMPTZ NOT NULL
	)
`

// DuckDBStore implements Store on DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed store. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the security_events and risk_snapshots tables.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	return database.ExecSchema(ctx, s.db, "security_events", eventsSchema)
}

// Append implements Store.
func (s *DuckDBStore) Append(ctx context.Context, e *Event) error {
	var meta any
	if len(e.Meta) > 0 {
		data, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal meta: %w", err)
		}
		meta = string(data)
	}

	return database.Timed("INSERT", "security_events", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO security_events
				(id, actor_user_id, server_id, ip, event_type, risk_level, risk_rank, meta, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, nullInt(e.ActorUserID), nullInt(e.ServerID), nullString(e.IP),
			e.EventType, string(e.RiskLevel), e.RiskLevel.Rank(), meta, e.CreatedAt,
		)
		return err
	})
}

func buildWhere(f *Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if in := database.InClause("event_type", f.Types, &args); in != "" {
		conds = append(conds, in)
	}
	if f.ServerID != nil {
		conds = append(conds, "server_id = ?")
		args = append(args, *f.ServerID)
	}
	if f.IP != "" {
		conds = append(conds, "ip = ?")
		args = append(args, f.IP)
	}
	if f.MinRisk != "" {
		conds = append(conds, "risk_rank >= ?")
		args = append(args, f.MinRisk.Rank())
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query implements Store.
func (s *DuckDBStore) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	where, args := buildWhere(&filter)
	query := `SELECT id, actor_user_id, server_id, ip, event_type, risk_level, meta, created_at
		FROM security_events` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var out []*Event
	err := database.Timed("SELECT", "security_events", func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e       Event
				actor   sql.NullInt64
				server  sql.NullInt64
				ip      sql.NullString
				risk    string
				rawMeta sql.NullString
			)
			if err := rows.Scan(&e.ID, &actor, &server, &ip, &e.EventType, &risk, &rawMeta, &e.CreatedAt); err != nil {
				return err
			}
			if actor.Valid {
				e.ActorUserID = Int64(actor.Int64)
			}
			if server.Valid {
				e.ServerID = Int64(server.Int64)
			}
			e.IP = ip.String
			e.RiskLevel = RiskLevel(risk)
			if rawMeta.Valid && rawMeta.String != "" {
				if err := json.Unmarshal([]byte(rawMeta.String), &e.Meta); err != nil {
					return fmt.Errorf("failed to unmarshal meta for %s: %w", e.ID, err)
				}
			}
			out = append(out, &e)
		}
		return rows.Err()
	})
	return out, err
}

// Count implements Store.
func (s *DuckDBStore) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(&filter)
	var n int64
	err := database.Timed("COUNT", "security_events", func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM security_events"+where, args...).Scan(&n)
	})
	return n, err
}

// SummarizeByIP implements Store.
func (s *DuckDBStore) SummarizeByIP(ctx context.Context, since time.Time) ([]IPSummary, error) {
	var out []IPSummary
	err := database.Timed("SELECT", "security_events", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT ip, event_type, COUNT(*), MAX(risk_rank), MAX(created_at)
			FROM security_events
			WHERE ip IS NOT NULL AND ip <> '' AND created_at >= ?
			GROUP BY ip, event_type
			ORDER BY ip, event_type`, since)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				sum  IPSummary
				rank int
			)
			if err := rows.Scan(&sum.IP, &sum.EventType, &sum.Count, &rank, &sum.LastSeen); err != nil {
				return err
			}
			sum.MaxRisk = riskFromRank(rank)
			out = append(out, sum)
		}
		return rows.Err()
	})
	return out, err
}

// UpsertRiskSnapshot implements Store.
func (s *DuckDBStore) UpsertRiskSnapshot(ctx context.Context, identifier, country string, seenAt time.Time) error {
	return database.Timed("UPSERT", "risk_snapshots", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO risk_snapshots (identifier, geo_country, last_seen_at)
			VALUES (?, ?, ?)
			ON CONFLICT (identifier) DO UPDATE SET
				last_seen_at = excluded.last_seen_at,
				geo_country = COALESCE(NULLIF(risk_snapshots.geo_country, ''), excluded.geo_country)`,
			identifier, nullString(country), seenAt,
		)
		return err
	})
}

// GetRiskSnapshot implements Store.
func (s *DuckDBStore) GetRiskSnapshot(ctx context.Context, identifier string) (*RiskSnapshot, error) {
	var (
		snap    RiskSnapshot
		country sql.NullString
	)
	err := database.Timed("SELECT", "risk_snapshots", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT identifier, risk_score, risk_mode, geo_country, last_seen_at
			FROM risk_snapshots WHERE identifier = ?`, identifier,
		).Scan(&snap.Identifier, &snap.RiskScore, &snap.RiskMode, &country, &snap.LastSeenAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.GeoCountry = country.String
	return &snap, nil
}

// Prune implements Store.
func (s *DuckDBStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := database.Timed("DELETE", "security_events", func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM security_events WHERE created_at < ?", olderThan)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func riskFromRank(rank int) RiskLevel {
	for level, r := range riskRank {
		if r == rank {
			return level
		}
	}
	return RiskInfo
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
