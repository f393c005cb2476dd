// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sentinel/internal/cache"
	"github.com/tomtom215/sentinel/internal/logging"
)

// GeoConfig configures the ip-api style country resolver.
type GeoConfig struct {
	// BaseURL, e.g. http://ip-api.com/json. Empty disables lookups.
	BaseURL  string        `koanf:"base_url"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// PerMinute caps outbound lookups (the free ip-api tier allows 45).
	PerMinute int `koanf:"per_minute"`
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
}

// GeoResolver resolves IPs to ISO country codes. It satisfies
// eventlog.GeoResolver; failures resolve to "".
type GeoResolver struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache[string]
}

// NewGeoResolver creates a resolver.
func NewGeoResolver(cfg GeoConfig) *GeoResolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 45
	}
	return &GeoResolver{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1),
		cache:   cache.New[string](cfg.CacheTTL),
	}
}

// Close stops the cache sweeper.
func (g *GeoResolver) Close() {
	g.cache.Close()
}

// Country implements eventlog.GeoResolver. Private and loopback addresses
// are never looked up. Lookups over the rate limit are skipped.
func (g *GeoResolver) Country(ctx context.Context, ip string) string {
	if g.baseURL == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() {
		return ""
	}
	if cc, ok := g.cache.Get(ip); ok {
		return cc
	}
	if !g.limiter.Allow() {
		return ""
	}

	cc, err := g.lookup(ctx, addr.String())
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("ip", ip).Msg("Geo lookup failed")
		return ""
	}
	g.cache.Set(ip, cc)
	return cc
}

func (g *GeoResolver) lookup(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s?fields=status,message,countryCode", g.baseURL, ip), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query geo service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo service returned status %d", resp.StatusCode)
	}
	var out ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode geo response: %w", err)
	}
	if out.Status != "success" {
		return "", fmt.Errorf("geo lookup failed: %s", out.Message)
	}
	return strings.ToUpper(out.CountryCode), nil
}
