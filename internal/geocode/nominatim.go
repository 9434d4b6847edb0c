// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/models"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim reverse geocodes through an OpenStreetMap Nominatim server.
type Nominatim struct {
	httpProvider
	language string
}

// NewNominatim creates a Nominatim provider. Its limiter spaces requests by
// cfg.RateLimit, matching the public server's one request per second policy.
func NewNominatim(cfg *config.GeocodingConfig) *Nominatim {
	base := cfg.BaseURL
	if base == "" {
		base = defaultNominatimURL
	}
	return &Nominatim{
		httpProvider: newHTTPProvider(strings.TrimRight(base, "/"), cfg.UserAgent, cfg.RateLimit),
		language:     cfg.Language,
	}
}

// Name implements Geocoder.
func (n *Nominatim) Name() string { return "nominatim" }

type nominatimResponse struct {
	Error   string `json:"error,omitempty"`
	Address struct {
		CountryCode  string `json:"country_code"`
		Country      string `json:"country"`
		State        string `json:"state"`
		Region       string `json:"region"`
		Province     string `json:"province"`
		County       string `json:"county"`
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		Hamlet       string `json:"hamlet"`
	} `json:"address"`
}

// ReverseGeocode implements Geocoder.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) (*models.Place, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("zoom", "10")
	params.Set("addressdetails", "1")

	header := http.Header{}
	if n.language != "" {
		header.Set("Accept-Language", n.language)
	}

	resp, err := n.get(ctx, n.baseURL+"/reverse?"+params.Encode(), header)
	if err != nil {
		return nil, fmt.Errorf("nominatim reverse: %w", err)
	}
	defer resp.Body.Close()

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, body.Error)
	}

	a := body.Address
	place := &models.Place{
		CountryCode: strings.ToLower(a.CountryCode),
		CountryName: a.Country,
		RegionName:  firstNonEmpty(a.State, a.Region, a.Province, a.County),
		City:        firstNonEmpty(a.City, a.Town, a.Village, a.Municipality, a.Hamlet, a.County),
	}
	if place.CountryCode == "" && place.CountryName == "" {
		return nil, ErrNoResult
	}
	return place, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
