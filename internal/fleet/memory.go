// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package fleet

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory Directory.
type MemoryDirectory struct {
	mu           sync.RWMutex
	servers      map[int64]Server
	deletedUsers map[int64]bool
}

// NewMemoryDirectory creates a directory holding servers.
func NewMemoryDirectory(servers ...Server) *MemoryDirectory {
	d := &MemoryDirectory{servers: make(map[int64]Server), deletedUsers: make(map[int64]bool)}
	for _, s := range servers {
		d.servers[s.ID] = s
	}
	return d
}

// Put adds or replaces a server.
func (d *MemoryDirectory) Put(s Server) {
	d.mu.Lock()
	d.servers[s.ID] = s
	d.mu.Unlock()
}

func (d *MemoryDirectory) sorted() []Server {
	out := make([]Server, 0, len(d.servers))
	for _, s := range d.servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListServers implements Directory.
func (d *MemoryDirectory) ListServers(_ context.Context, afterID int64, limit int) ([]Server, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Server
	for _, s := range d.sorted() {
		if s.ID <= afterID {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetServer implements Directory.
func (d *MemoryDirectory) GetServer(_ context.Context, id int64) (*Server, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.servers[id]
	if !ok {
		return nil, ErrServerNotFound
	}
	return &s, nil
}

// ListServersByOwner implements Directory.
func (d *MemoryDirectory) ListServersByOwner(_ context.Context, ownerID int64) ([]Server, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Server
	for _, s := range d.sorted() {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

// SetSuspended implements Directory.
func (d *MemoryDirectory) SetSuspended(_ context.Context, id int64, suspended bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.servers[id]
	if !ok {
		return ErrServerNotFound
	}
	s.Suspended = suspended
	d.servers[id] = s
	return nil
}

// DeleteServer implements Directory.
func (d *MemoryDirectory) DeleteServer(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.servers[id]; !ok {
		return ErrServerNotFound
	}
	delete(d.servers, id)
	return nil
}

// DeleteUser implements Directory.
func (d *MemoryDirectory) DeleteUser(_ context.Context, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deletedUsers[userID] {
		return ErrUserNotFound
	}
	d.deletedUsers[userID] = true
	return nil
}

// UserDeleted reports whether DeleteUser was called for userID.
func (d *MemoryDirectory) UserDeleted(userID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.deletedUsers[userID]
}

// MemoryReputations is an in-memory ReputationProvider.
type MemoryReputations struct {
	mu     sync.RWMutex
	scores map[int64]Reputation
	now    func() time.Time

	// Recalc, when set, produces the recalculated reputation. The default
	// recomputes Trust from the stored components.
	Recalc func(Reputation) Reputation

	recalculated int
}

// NewMemoryReputations creates a provider holding reps.
func NewMemoryReputations(now func() time.Time, reps ...Reputation) *MemoryReputations {
	if now == nil {
		now = time.Now
	}
	m := &MemoryReputations{scores: make(map[int64]Reputation), now: now}
	for _, r := range reps {
		m.scores[r.ServerID] = r
	}
	return m
}

// Put adds or replaces a reputation row.
func (m *MemoryReputations) Put(r Reputation) {
	m.mu.Lock()
	m.scores[r.ServerID] = r
	m.mu.Unlock()
}

// ListReputations implements ReputationProvider.
func (m *MemoryReputations) ListReputations(_ context.Context, afterID int64, limit int) ([]Reputation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Reputation, 0, len(m.scores))
	for _, r := range m.scores {
		if r.ServerID > afterID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetReputation implements ReputationProvider.
func (m *MemoryReputations) GetReputation(_ context.Context, serverID int64) (*Reputation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.scores[serverID]
	if !ok {
		return nil, ErrServerNotFound
	}
	return &r, nil
}

// Recalculate implements ReputationProvider.
func (m *MemoryReputations) Recalculate(_ context.Context, serverID int64) (*Reputation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.scores[serverID]
	if !ok {
		r = Reputation{ServerID: serverID, Stability: 100, Uptime: 100}
	}
	if m.Recalc != nil {
		r = m.Recalc(r)
	} else {
		r.Trust = ComputeTrust(r.Stability, r.Uptime, r.Abuse)
	}
	r.CalculatedAt = m.now()
	m.scores[serverID] = r
	m.recalculated++
	return &r, nil
}

// Recalculations returns how many times Recalculate ran.
func (m *MemoryReputations) Recalculations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recalculated
}
