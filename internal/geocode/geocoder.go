// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package geocode resolves coordinates to administrative places.
//
// Two providers are available: Nominatim (OpenStreetMap, the default) and
// Amap for mainland China. Both are rate limited client-side so a misbehaving
// caller cannot exceed the provider's usage policy.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/models"
)

const maxErrorBodySize = 64 * 1024

// ErrNoResult is returned when the provider has no place for a coordinate.
var ErrNoResult = errors.New("geocoder returned no result")

// Geocoder resolves one coordinate to a place.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*models.Place, error)
	Name() string
}

// New builds the provider selected by cfg.Provider.
func New(cfg *config.GeocodingConfig) (Geocoder, error) {
	switch cfg.Provider {
	case "", "nominatim":
		return NewNominatim(cfg), nil
	case "amap":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("amap provider requires an API key")
		}
		return NewAmap(cfg), nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q", cfg.Provider)
	}
}

// httpProvider holds what both providers share: the HTTP client and the
// request limiter.
type httpProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func newHTTPProvider(baseURL, userAgent string, spacing time.Duration) httpProvider {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return httpProvider{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (p *httpProvider) get(ctx context.Context, reqURL string, header http.Header) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("geocode request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}
