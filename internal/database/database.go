// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package database opens and configures the DuckDB connection that backs the
// security event log, settings, adaptive baselines, reputation indicators,
// and the fleet directory mirror.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Config holds DuckDB connection settings.
type Config struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// Open opens DuckDB at cfg.Path (":memory:" for an ephemeral database) and
// verifies the connection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	dsn := cfg.Path
	if dsn != ":memory:" && dsn != "" {
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", cfg.Path, threads, maxMemory)
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("DuckDB opened")
	return conn, nil
}

// ExecSchema executes a multi-statement schema script, one statement at a
// time. Statements are separated by ";".
func ExecSchema(ctx context.Context, db *sql.DB, table, schema string) error {
	start := time.Now()
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			metrics.RecordDBQuery("CREATE", table, time.Since(start), err)
			return fmt.Errorf("failed to execute schema statement for %s: %w", table, err)
		}
	}
	metrics.RecordDBQuery("CREATE", table, time.Since(start), nil)
	return nil
}

// Timed runs fn and records its duration and error against operation/table.
func Timed(operation, table string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
	return err
}

// InClause builds "column IN (?,?,...)" and appends values to args.
// It returns "" for an empty slice.
func InClause[T ~string](column string, values []T, args *[]any) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}
