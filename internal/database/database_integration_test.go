// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

//go:build integration

package database

import (
	"context"
	"testing"
)

func TestOpenAndExecSchema(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	schema := `
		CREATE TABLE IF NOT EXISTS probe (id INTEGER PRIMARY KEY, name TEXT);
		CREATE INDEX IF NOT EXISTS idx_probe_name ON probe(name);
	`
	if err := ExecSchema(ctx, db, "probe", schema); err != nil {
		t.Fatalf("ExecSchema: %v", err)
	}
	// Idempotent.
	if err := ExecSchema(ctx, db, "probe", schema); err != nil {
		t.Fatalf("second ExecSchema: %v", err)
	}
}
