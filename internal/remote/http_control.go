// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sentinel/internal/breaker"
	"github.com/tomtom215/sentinel/internal/fleet"
)

// Config configures the daemon client.
type Config struct {
	BaseURL           string        `koanf:"base_url" validate:"omitempty,url"`
	Token             string        `koanf:"token"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// DefaultConfig returns client defaults.
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second, RequestsPerSecond: 20, Burst: 10}
}

var _ ServerControl = (*HTTPControl)(nil)

// HTTPControl talks to the node daemon's REST API:
//
//	GET  /api/servers/{uuid}/resources
//	POST /api/servers/{uuid}/power   {"action": "stop"|"kill"}
type HTTPControl struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *breaker.Breaker
}

// NewHTTPControl creates a daemon client.
func NewHTTPControl(cfg Config) *HTTPControl {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = d.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = d.Burst
	}
	return &HTTPControl{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: breaker.New("server-control", breaker.DefaultSettings()),
	}
}

type resourcesResponse struct {
	State       string      `json:"state"`
	Utilization Utilization `json:"utilization"`
}

// Utilization implements ServerControl.
func (c *HTTPControl) Utilization(ctx context.Context, srv fleet.Server) (*Utilization, error) {
	var out resourcesResponse
	if err := c.do(ctx, http.MethodGet, "/api/servers/"+srv.UUID+"/resources", nil, &out); err != nil {
		return nil, fmt.Errorf("utilization for server %d: %w", srv.ID, err)
	}
	u := out.Utilization
	if u.State == "" {
		u.State = out.State
	}
	return &u, nil
}

// Stop implements ServerControl.
func (c *HTTPControl) Stop(ctx context.Context, srv fleet.Server) error {
	return c.power(ctx, srv, "stop")
}

// Kill implements ServerControl.
func (c *HTTPControl) Kill(ctx context.Context, srv fleet.Server) error {
	return c.power(ctx, srv, "kill")
}

func (c *HTTPControl) power(ctx context.Context, srv fleet.Server, action string) error {
	body := map[string]string{"action": action}
	if err := c.do(ctx, http.MethodPost, "/api/servers/"+srv.UUID+"/power", body, nil); err != nil {
		return fmt.Errorf("%s server %d: %w", action, srv.ID, err)
	}
	return nil
}

func (c *HTTPControl) do(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: no base url configured", ErrUnavailable)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	err := c.breaker.Execute(func() error {
		var body io.Reader = http.NoBody
		if in != nil {
			data, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	if errors.Is(err, breaker.ErrRejected) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
