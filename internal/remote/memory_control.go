// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/sentinel/internal/fleet"
)

var _ ServerControl = (*MemoryControl)(nil)

// MemoryControl is a scripted ServerControl for tests and dry runs.
type MemoryControl struct {
	mu       sync.Mutex
	readings map[int64]Utilization
	failing  map[string]error
	calls    []string
}

// NewMemoryControl creates an empty MemoryControl.
func NewMemoryControl() *MemoryControl {
	return &MemoryControl{
		readings: make(map[int64]Utilization),
		failing:  make(map[string]error),
	}
}

// SetUtilization scripts the next readings for serverID.
func (m *MemoryControl) SetUtilization(serverID int64, u Utilization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[serverID] = u
}

// Fail makes op ("utilization", "stop", "kill") return err. A nil err clears it.
func (m *MemoryControl) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, op)
		return
	}
	m.failing[op] = err
}

// Calls returns "op:serverID" for every power call made.
func (m *MemoryControl) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Utilization implements ServerControl.
func (m *MemoryControl) Utilization(_ context.Context, srv fleet.Server) (*Utilization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing["utilization"]; err != nil {
		return nil, err
	}
	u, ok := m.readings[srv.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no reading for server %d", ErrUnavailable, srv.ID)
	}
	return &u, nil
}

// Stop implements ServerControl.
func (m *MemoryControl) Stop(_ context.Context, srv fleet.Server) error {
	return m.record("stop", srv.ID)
}

// Kill implements ServerControl.
func (m *MemoryControl) Kill(_ context.Context, srv fleet.Server) error {
	return m.record("kill", srv.ID)
}

func (m *MemoryControl) record(op string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing[op]; err != nil {
		return err
	}
	m.calls = append(m.calls, fmt.Sprintf("%s:%d", op, id))
	return nil
}
