// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/sentinel/internal/database"
)

const indicatorsSchema = `
	CREATE TABLE IF NOT EXISTS reputation_indicators (
		indicator_type TEXT NOT NULL,
		value TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT,
		confidence INTEGER NOT NULL,
		risk_level TEXT,
		hit_count BIGINT NOT NULL DEFAULT 0,
		last_seen_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		PRIMARY KEY (indicator_type, value, source)
	);

	CREATE INDEX IF NOT EXISTS idx_reputation_indicators_expires ON reputation_indicators(expires_at)
`

var _ IndicatorStore = (*DuckDBStore)(nil)

// DuckDBStore implements IndicatorStore on DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed store. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the reputation_indicators table.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	return database.ExecSchema(ctx, s.db, "reputation_indicators", indicatorsSchema)
}

// Upsert implements IndicatorStore.
func (s *DuckDBStore) Upsert(ctx context.Context, ind Indicator) error {
	var expires any
	if !ind.ExpiresAt.IsZero() {
		expires = ind.ExpiresAt
	}
	return database.Timed("UPSERT", "reputation_indicators", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reputation_indicators
				(indicator_type, value, source, category, confidence, risk_level, hit_count, last_seen_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (indicator_type, value, source) DO UPDATE SET
				category = excluded.category,
				confidence = excluded.confidence,
				risk_level = excluded.risk_level,
				hit_count = excluded.hit_count,
				last_seen_at = excluded.last_seen_at,
				expires_at = excluded.expires_at`,
			ind.Type, ind.Value, ind.Source, ind.Category, ind.Confidence, ind.RiskLevel, ind.Count, ind.LastSeenAt, expires,
		)
		return err
	})
}

// Lookup implements IndicatorStore.
func (s *DuckDBStore) Lookup(ctx context.Context, typ, value string, now time.Time) ([]Indicator, error) {
	var out []Indicator
	err := database.Timed("SELECT", "reputation_indicators", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT indicator_type, value, source, COALESCE(category, ''), confidence, COALESCE(risk_level, ''),
				hit_count, last_seen_at, expires_at
			FROM reputation_indicators
			WHERE indicator_type = ? AND value = ? AND (expires_at IS NULL OR expires_at > ?)
			ORDER BY confidence DESC, source`,
			typ, value, now,
		)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				ind     Indicator
				expires sql.NullTime
			)
			if err := rows.Scan(&ind.Type, &ind.Value, &ind.Source, &ind.Category, &ind.Confidence,
				&ind.RiskLevel, &ind.Count, &ind.LastSeenAt, &expires); err != nil {
				return fmt.Errorf("failed to scan indicator: %w", err)
			}
			if expires.Valid {
				ind.ExpiresAt = expires.Time
			}
			out = append(out, ind)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// PruneExpired implements IndicatorStore.
func (s *DuckDBStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := database.Timed("DELETE", "reputation_indicators", func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM reputation_indicators WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
