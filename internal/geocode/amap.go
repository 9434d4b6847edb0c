// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package geocode

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/models"
)

const defaultAmapURL = "https://restapi.amap.com"

// Amap reverse geocodes through the Amap web service. Amap expects GCJ-02
// coordinates, so WGS84 input inside mainland China is shifted first.
type Amap struct {
	httpProvider
	key string
}

// NewAmap creates an Amap provider.
func NewAmap(cfg *config.GeocodingConfig) *Amap {
	base := cfg.BaseURL
	if base == "" || base == defaultNominatimURL {
		base = defaultAmapURL
	}
	return &Amap{
		httpProvider: newHTTPProvider(strings.TrimRight(base, "/"), cfg.UserAgent, cfg.RateLimit),
		key:          cfg.APIKey,
	}
}

// Name implements Geocoder.
func (a *Amap) Name() string { return "amap" }

type amapResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Regeocode *struct {
		AddressComponent struct {
			Country  json.RawMessage `json:"country"`
			Province json.RawMessage `json:"province"`
			City     json.RawMessage `json:"city"`     // "" or [] for municipalities
			District json.RawMessage `json:"district"` // "" or [] when absent
		} `json:"addressComponent"`
	} `json:"regeocode"`
}

// ReverseGeocode implements Geocoder.
func (a *Amap) ReverseGeocode(ctx context.Context, lat, lon float64) (*models.Place, error) {
	gLat, gLon := WGS84ToGCJ02(lat, lon)

	params := url.Values{}
	params.Set("location", strconv.FormatFloat(gLon, 'f', 6, 64)+","+strconv.FormatFloat(gLat, 'f', 6, 64))
	params.Set("key", a.key)
	params.Set("extensions", "base")

	resp, err := a.get(ctx, a.baseURL+"/v3/geocode/regeo?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("amap regeo: %w", err)
	}
	defer resp.Body.Close()

	var body amapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode amap response: %w", err)
	}
	if body.Status != "1" {
		return nil, fmt.Errorf("amap regeo failed: %s", body.Info)
	}
	if body.Regeocode == nil {
		return nil, ErrNoResult
	}

	c := body.Regeocode.AddressComponent
	country := rawString(c.Country)
	province := rawString(c.Province)
	if country == "" && province == "" {
		return nil, ErrNoResult
	}
	place := &models.Place{
		CountryName: country,
		RegionName:  province,
		// Municipalities such as Beijing report an empty city
		City: firstNonEmpty(rawString(c.City), province, rawString(c.District)),
	}
	if country == "中国" {
		place.CountryCode = "cn"
	}
	return place, nil
}

// rawString decodes a field that Amap sends either as a string or as an
// empty array.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

const (
	krasovskyA  = 6378245.0
	krasovskyEE = 0.00669342162296594323
)

// WGS84ToGCJ02 converts a GPS coordinate to the GCJ-02 datum used by Chinese
// map providers. Points outside mainland China are returned unchanged.
func WGS84ToGCJ02(lat, lon float64) (float64, float64) {
	if outsideChina(lat, lon) {
		return lat, lon
	}
	dLat := transformLat(lon-105.0, lat-35.0)
	dLon := transformLon(lon-105.0, lat-35.0)
	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - krasovskyEE*magic*magic
	sqrtMagic := math.Sqrt(magic)
	dLat = (dLat * 180.0) / ((krasovskyA * (1 - krasovskyEE)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (krasovskyA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return lat + dLat, lon + dLon
}

func outsideChina(lat, lon float64) bool {
	return lon < 72.004 || lon > 137.8347 || lat < 0.8293 || lat > 55.8271
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320.0*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
