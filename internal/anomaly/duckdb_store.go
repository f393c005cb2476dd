// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package anomaly

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tomtom215/sentinel/internal/database"
)

const baselineSchema = `
	CREATE TABLE IF NOT EXISTS adaptive_baselines (
		server_id BIGINT NOT NULL,
		metric_key TEXT NOT NULL,
		ewma DOUBLE NOT NULL,
		variance DOUBLE NOT NULL,
		last_value DOUBLE NOT NULL,
		anomaly_score DOUBLE NOT NULL,
		sample_count BIGINT NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (server_id, metric_key)
	)
`

// DuckDBStore implements BaselineStore on DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates the store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the adaptive_baselines table.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	return database.ExecSchema(ctx, s.db, "adaptive_baselines", baselineSchema)
}

// Get implements BaselineStore.
func (s *DuckDBStore) Get(ctx context.Context, serverID int64, metricKey string) (*Baseline, error) {
	var b Baseline
	err := database.Timed("SELECT", "adaptive_baselines", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT server_id, metric_key, ewma, variance, last_value, anomaly_score, sample_count, last_seen_at
			FROM adaptive_baselines WHERE server_id = ? AND metric_key = ?`, serverID, metricKey,
		).Scan(&b.ServerID, &b.MetricKey, &b.EWMA, &b.Variance, &b.LastValue, &b.AnomalyScore, &b.SampleCount, &b.LastSeenAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBaselineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Put implements BaselineStore.
func (s *DuckDBStore) Put(ctx context.Context, b *Baseline) error {
	return database.Timed("UPSERT", "adaptive_baselines", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO adaptive_baselines
				(server_id, metric_key, ewma, variance, last_value, anomaly_score, sample_count, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (server_id, metric_key) DO UPDATE SET
				ewma = excluded.ewma,
				variance = excluded.variance,
				last_value = excluded.last_value,
				anomaly_score = excluded.anomaly_score,
				sample_count = excluded.sample_count,
				last_seen_at = excluded.last_seen_at`,
			b.ServerID, b.MetricKey, b.EWMA, b.Variance, b.LastValue, b.AnomalyScore, b.SampleCount, b.LastSeenAt)
		return err
	})
}
