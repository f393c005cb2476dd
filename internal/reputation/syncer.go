// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package reputation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/breaker"
	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/settings"
	"github.com/tomtom215/sentinel/internal/validation"
)

// Sync constants.
const (
	PushWindow     = 24 * time.Hour
	IndicatorTTL   = 24 * time.Hour
	RequestTimeout = 5 * time.Second
	defaultSource  = "network"
	maxPullBytes   = 8 << 20
)

var errPeerStatus = errors.New("reputation network returned an error")

// riskWeight is added to the 10-per-hit confidence of pushed indicators.
var riskWeight = map[eventlog.RiskLevel]int{
	eventlog.RiskInfo:     0,
	eventlog.RiskLow:      5,
	eventlog.RiskMedium:   15,
	eventlog.RiskHigh:     30,
	eventlog.RiskCritical: 50,
}

// Result summarizes one exchange.
type Result struct {
	Enabled    bool `json:"enabled"`
	Pushed     int  `json:"pushed"`
	Pulled     int  `json:"pulled"`
	Skipped    int  `json:"skipped"`
	PushErrors int  `json:"push_errors"`
	PullErrors int  `json:"pull_errors"`
}

// Syncer exchanges indicators with the reputation network.
type Syncer struct {
	settings *settings.Accessor
	events   *eventlog.Recorder
	store    IndicatorStore
	client   *http.Client
	breaker  *breaker.Breaker
}

// NewSyncer creates a syncer. client may be nil.
func NewSyncer(s *settings.Accessor, events *eventlog.Recorder, store IndicatorStore, client *http.Client) *Syncer {
	if client == nil {
		client = &http.Client{Timeout: RequestTimeout}
	}
	return &Syncer{
		settings: s,
		events:   events,
		store:    store,
		client:   client,
		breaker:  breaker.New("reputation-network", breaker.DefaultSettings()),
	}
}

// Store returns the indicator store.
func (s *Syncer) Store() IndicatorStore {
	return s.store
}

// Sync pushes local indicators and pulls the network's. Both directions are
// best effort: a failure is logged and counted in the result, never
// returned, so a peer outage cannot fail the cycle that runs the sync.
// Indicators stored before a failed pull stay stored.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	endpoint := strings.TrimSuffix(s.settings.String(ctx, settings.ReputationEndpoint), "/")
	if !s.settings.Bool(ctx, settings.ReputationEnabled) || endpoint == "" {
		return Result{}, nil
	}
	res := Result{Enabled: true}

	pushed, err := s.push(ctx, endpoint)
	if err != nil {
		metrics.ReputationSyncTotal.WithLabelValues("push", "error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Msg("Reputation push failed")
		res.PushErrors++
	} else {
		metrics.ReputationSyncTotal.WithLabelValues("push", "ok").Inc()
		res.Pushed = pushed
	}

	pulled, skipped, err := s.pull(ctx, endpoint)
	res.Pulled, res.Skipped = pulled, skipped
	if err != nil {
		metrics.ReputationSyncTotal.WithLabelValues("pull", "error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Msg("Reputation pull failed")
		res.PullErrors++
	} else {
		metrics.ReputationSyncTotal.WithLabelValues("pull", "ok").Inc()
	}

	_, err = s.events.Record(ctx, eventlog.TypeReputationSynced, eventlog.Payload{
		RiskLevel: eventlog.RiskInfo,
		Meta: map[string]any{
			"pushed":      res.Pushed,
			"pulled":      res.Pulled,
			"skipped":     res.Skipped,
			"push_errors": res.PushErrors,
			"pull_errors": res.PullErrors,
		},
	})
	return res, err
}

// LocalIndicators builds the indicators to push from the last 24 hours of
// events: one per (ip, event type), with the event type as category and
// confidence min(100, 10*hits + risk weight).
func (s *Syncer) LocalIndicators(ctx context.Context) ([]Indicator, error) {
	now := s.events.Now()
	summaries, err := s.events.Store().SummarizeByIP(ctx, now.Add(-PushWindow))
	if err != nil {
		return nil, fmt.Errorf("summarize events: %w", err)
	}

	source := s.settings.String(ctx, settings.ReputationSource)
	minConfidence := s.settings.Int(ctx, settings.ReputationMinConfidence)
	out := make([]Indicator, 0, len(summaries))
	for _, sum := range summaries {
		if sum.IP == "" {
			continue
		}
		confidence := min(100, int(10*sum.Count)+riskWeight[sum.MaxRisk])
		if confidence < minConfidence {
			continue
		}
		out = append(out, Indicator{
			Type:       TypeIP,
			Value:      sum.IP,
			Source:     source,
			Category:   sum.EventType,
			Confidence: confidence,
			RiskLevel:  string(sum.MaxRisk),
			Count:      sum.Count,
			LastSeenAt: sum.LastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

type pushRequest struct {
	Source     string      `json:"source"`
	Indicators []Indicator `json:"indicators"`
}

func (s *Syncer) push(ctx context.Context, endpoint string) (int, error) {
	indicators, err := s.LocalIndicators(ctx)
	if err != nil {
		return 0, err
	}
	if len(indicators) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(pushRequest{
		Source:     s.settings.String(ctx, settings.ReputationSource),
		Indicators: indicators,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal indicators: %w", err)
	}
	if _, err := s.do(ctx, http.MethodPost, endpoint+"/indicators", body); err != nil {
		return 0, err
	}
	return len(indicators), nil
}

type pullResponse struct {
	Indicators []json.RawMessage `json:"indicators"`
}

func (s *Syncer) pull(ctx context.Context, endpoint string) (pulled, skipped int, err error) {
	data, err := s.do(ctx, http.MethodGet, endpoint+"/indicators", nil)
	if err != nil {
		return 0, 0, err
	}
	var resp pullResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, 0, fmt.Errorf("decode indicators: %w", err)
	}

	now := s.events.Now()
	for _, raw := range resp.Indicators {
		ind, ok := parseRow(raw)
		if !ok {
			skipped++
			continue
		}
		ind.LastSeenAt = now
		ind.ExpiresAt = now.Add(IndicatorTTL)
		if err := s.store.Upsert(ctx, ind); err != nil {
			return pulled, skipped, fmt.Errorf("store indicator: %w", err)
		}
		pulled++
	}
	if skipped > 0 {
		logging.Ctx(ctx).Debug().Int("skipped", skipped).Msg("Skipped malformed reputation rows")
	}
	return pulled, skipped, nil
}

// parseRow validates one pulled row: type and value are required and IP
// indicators must hold an address or CIDR.
func parseRow(raw json.RawMessage) (Indicator, bool) {
	var row struct {
		Type       string `json:"type"`
		Value      string `json:"value"`
		Source     string `json:"source"`
		Category   string `json:"category"`
		Confidence int    `json:"confidence"`
		RiskLevel  string `json:"risk_level"`
		Count      int64  `json:"count"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return Indicator{}, false
	}
	row.Type = strings.ToLower(strings.TrimSpace(row.Type))
	row.Value = strings.TrimSpace(row.Value)
	if row.Type == "" || row.Value == "" {
		return Indicator{}, false
	}
	if row.Type == TypeIP && !validation.IsIPOrCIDR(row.Value) {
		return Indicator{}, false
	}
	if row.Source == "" {
		row.Source = defaultSource
	}
	return Indicator{
		Type:       row.Type,
		Value:      row.Value,
		Source:     row.Source,
		Category:   row.Category,
		Confidence: max(0, min(100, row.Confidence)),
		RiskLevel:  row.RiskLevel,
		Count:      row.Count,
	}, true
}

func (s *Syncer) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	token := s.settings.String(ctx, settings.ReputationToken)

	return breaker.Do(s.breaker, func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
		defer cancel()

		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPullBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", errPeerStatus, resp.StatusCode)
		}
		return data, nil
	})
}
