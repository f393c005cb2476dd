// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package nodescan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/sentinel/internal/eventlog"
)

// ScoreWindow is the event lookback of a security score.
const ScoreWindow = 24 * time.Hour

// component weights a category of events. Each incident costs penalty points
// off 100, floored at 0.
type component struct {
	name    string
	weight  float64
	penalty float64
	types   []string
}

var components = []component{
	{"dependency", 0.2, 10, []string{eventlog.TypeNodeDependencyRisk}},
	{"secret", 0.3, 25, []string{eventlog.TypeNodeSecretDetected}},
	{"runtime", 0.3, 15, []string{
		eventlog.TypeNodeMemoryLeak,
		eventlog.TypeNodeCPUSustained,
		eventlog.TypeNodeEscapeProbe,
		eventlog.TypeNodeDangerousPattern,
	}},
	{"network", 0.2, 5, []string{eventlog.TypeRateLimited, eventlog.TypeDDoSBurstBlocked}},
}

// Score is a server's composite security score.
type Score struct {
	ServerID   int64              `json:"server_id"`
	Total      int                `json:"score"`
	Components map[string]float64 `json:"components"`
	Incidents  map[string]int64   `json:"incidents"`
	Since      time.Time          `json:"since"`
}

// Scorer computes security scores from the event log.
type Scorer struct {
	events *eventlog.Recorder
}

// NewScorer creates a scorer.
func NewScorer(events *eventlog.Recorder) *Scorer {
	return &Scorer{events: events}
}

// Score returns the 0..100 score of serverID over the last 24 hours.
func (s *Scorer) Score(ctx context.Context, serverID int64) (Score, error) {
	since := s.events.Now().Add(-ScoreWindow)
	out := Score{
		ServerID:   serverID,
		Components: make(map[string]float64, len(components)),
		Incidents:  make(map[string]int64, len(components)),
		Since:      since,
	}

	var total float64
	for _, c := range components {
		n, err := s.events.Store().Count(ctx, eventlog.Filter{
			Types:    c.types,
			ServerID: eventlog.Int64(serverID),
			Since:    since,
		})
		if err != nil {
			return Score{}, fmt.Errorf("count %s events: %w", c.name, err)
		}
		value := math.Max(0, 100-float64(n)*c.penalty)
		out.Components[c.name] = value
		out.Incidents[c.name] = n
		total += c.weight * value
	}
	out.Total = int(math.Round(total))
	return out, nil
}
