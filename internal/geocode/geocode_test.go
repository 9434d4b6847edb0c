// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/matesync/internal/config"
)

func TestGrid(t *testing.T) {
	g := NewGrid(2)

	tests := []struct {
		name     string
		lat, lon float64
		wantKey  string
	}{
		{"rounds down", 52.52001, 13.40495, "52.52,13.40"},
		{"rounds up", 52.5251, 13.4071, "52.53,13.41"},
		{"negative", -33.86882, 151.20929, "-33.87,151.21"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Key(tt.lat, tt.lon); got != tt.wantKey {
				t.Errorf("Key() = %q, want %q", got, tt.wantKey)
			}
		})
	}

	lat1, lon1 := g.Cell(52.52001, 13.40495)
	lat2, lon2 := g.Cell(52.52420, 13.40210)
	if lat1 != lat2 || lon1 != lon2 {
		t.Errorf("nearby points in different cells: (%v,%v) vs (%v,%v)", lat1, lon1, lat2, lon2)
	}
	if g.CellKey(lat1, lon1) != g.Key(52.52001, 13.40495) {
		t.Error("CellKey disagrees with Key")
	}
}

func TestValidCoordinate(t *testing.T) {
	if ValidCoordinate(0, 0) {
		t.Error("0,0 accepted")
	}
	if ValidCoordinate(91, 10) {
		t.Error("latitude 91 accepted")
	}
	if !ValidCoordinate(48.1, 11.5) {
		t.Error("valid point rejected")
	}
}

func TestNominatim_ReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/reverse" || q.Get("format") != "jsonv2" || q.Get("zoom") != "10" || q.Get("addressdetails") != "1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if r.Header.Get("User-Agent") != "MateSync-Test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept-Language") != "de" {
			t.Errorf("Accept-Language = %q", r.Header.Get("Accept-Language"))
		}
		_, _ = w.Write([]byte(`{"address":{"country_code":"DE","country":"Deutschland","state":"Bayern","town":"Freising"}}`))
	}))
	defer server.Close()

	n := NewNominatim(&config.GeocodingConfig{BaseURL: server.URL, UserAgent: "MateSync-Test", Language: "de"})
	place, err := n.ReverseGeocode(context.Background(), 48.4, 11.7)
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if place.CountryCode != "de" || place.RegionName != "Bayern" || place.City != "Freising" {
		t.Errorf("place = %+v", place)
	}
}

func TestNominatim_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "1" {
			_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := NewNominatim(&config.GeocodingConfig{BaseURL: server.URL})
	if _, err := n.ReverseGeocode(context.Background(), 1, 1); !errors.Is(err, ErrNoResult) {
		t.Errorf("error = %v, want ErrNoResult", err)
	}
	if _, err := n.ReverseGeocode(context.Background(), 2, 2); err == nil {
		t.Error("503 did not fail")
	}
}

func TestAmap_ReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/geocode/regeo" || r.URL.Query().Get("key") != "k" || r.URL.Query().Get("extensions") != "base" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"status":"1","info":"OK","regeocode":{"addressComponent":{"country":"中国","province":"北京市","city":[],"district":"东城区"}}}`))
	}))
	defer server.Close()

	a := NewAmap(&config.GeocodingConfig{BaseURL: server.URL, APIKey: "k"})
	place, err := a.ReverseGeocode(context.Background(), 39.9042, 116.4074)
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if place.CountryCode != "cn" || place.City != "北京市" {
		t.Errorf("place = %+v", place)
	}
}

func TestWGS84ToGCJ02(t *testing.T) {
	lat, lon := WGS84ToGCJ02(48.1, 11.5)
	if lat != 48.1 || lon != 11.5 {
		t.Error("point outside China was shifted")
	}
	lat, lon = WGS84ToGCJ02(39.9042, 116.4074)
	if lat == 39.9042 || lon == 116.4074 {
		t.Error("point in Beijing was not shifted")
	}
	if d := lat - 39.9042; d < 0 || d > 0.01 {
		t.Errorf("latitude shift %v out of expected range", d)
	}
}

func TestNew(t *testing.T) {
	g, err := New(&config.GeocodingConfig{Provider: "nominatim"})
	if err != nil || g.Name() != "nominatim" {
		t.Errorf("New(nominatim) = %v, %v", g, err)
	}
	if _, err := New(&config.GeocodingConfig{Provider: "amap"}); err == nil {
		t.Error("amap without key accepted")
	}
	if _, err := New(&config.GeocodingConfig{Provider: "bing"}); err == nil {
		t.Error("unknown provider accepted")
	}
}
