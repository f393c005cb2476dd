// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCycle(t *testing.T) {
	tests := []struct {
		name    string
		cycle   string
		err     error
		outcome string
	}{
		{"successful run", "test_cycle_ok", nil, "ok"},
		{"failed run", "test_cycle_err", errors.New("store down"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(CycleRunsTotal.WithLabelValues(tt.cycle, tt.outcome))
			RecordCycle(tt.cycle, 25*time.Millisecond, tt.err)
			after := testutil.ToFloat64(CycleRunsTotal.WithLabelValues(tt.cycle, tt.outcome))
			if after != before+1 {
				t.Errorf("CycleRunsTotal{%s,%s} = %v, want %v", tt.cycle, tt.outcome, after, before+1)
			}
		})
	}
}

func TestRecordCycleSkipped(t *testing.T) {
	before := testutil.ToFloat64(CycleRunsTotal.WithLabelValues("test_skip", "disabled"))
	RecordCycleSkipped("test_skip")
	if got := testutil.ToFloat64(CycleRunsTotal.WithLabelValues("test_skip", "disabled")); got != before+1 {
		t.Errorf("disabled counter = %v, want %v", got, before+1)
	}
}

func TestRecordKV(t *testing.T) {
	before := testutil.ToFloat64(KVOperationsTotal.WithLabelValues("test", "incr", "error"))
	RecordKV("test", "incr", errors.New("boom"))
	RecordKV("test", "incr", nil)
	if got := testutil.ToFloat64(KVOperationsTotal.WithLabelValues("test", "incr", "error")); got != before+1 {
		t.Errorf("error counter = %v, want %v", got, before+1)
	}
}

func TestRecordDBQueryCountsErrorsOnly(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "test_table"))
	RecordDBQuery("SELECT", "test_table", time.Millisecond, nil)
	RecordDBQuery("SELECT", "test_table", time.Millisecond, errors.New("locked"))
	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "test_table")); got != before+1 {
		t.Errorf("DBQueryErrors = %v, want %v", got, before+1)
	}
}
