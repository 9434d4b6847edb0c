// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package teslamate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/matesync/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient(&config.TeslamateConfig{URL: server.URL + "/", Token: "secret"})
	c.retryBaseDelay = time.Millisecond
	return c
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(&config.TeslamateConfig{})
	if c.Configured() {
		t.Fatal("Configured() = true for empty URL")
	}
	if _, err := c.ListVehicles(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ListVehicles() error = %v, want ErrNotConfigured", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Ping() error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_ListVehicles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cars" {
			t.Errorf("path = %s, want /api/v1/cars", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"car_id":1,"name":"Blue"},{"car_id":2,"display_name":"Red"}]}`))
	})

	cars, err := c.ListVehicles(context.Background())
	if err != nil {
		t.Fatalf("ListVehicles() error = %v", err)
	}
	if len(cars) != 2 {
		t.Fatalf("len = %d, want 2", len(cars))
	}
	if cars[0].Label() != "Blue" || cars[1].Label() != "Red" {
		t.Errorf("labels = %q, %q", cars[0].Label(), cars[1].Label())
	}
}

func TestClient_GetDrivesSendsDateRange(t *testing.T) {
	from := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("startDate"); got != "2026-04-01T12:00:00Z" {
			t.Errorf("startDate = %q", got)
		}
		if r.URL.Query().Has("endDate") {
			t.Error("endDate sent for zero bound")
		}
		_, _ = w.Write([]byte(`{"data":[{"id":5,"start_date":"2026-04-02T08:00:00Z","distance":12.4,"start_latitude":52.5,"start_longitude":13.4}]}`))
	})

	drives, err := c.GetDrives(context.Background(), 1, from, time.Time{})
	if err != nil {
		t.Fatalf("GetDrives() error = %v", err)
	}
	if len(drives) != 1 || drives[0].ID != 5 || drives[0].StartLatitude == nil || *drives[0].DistanceKm != 12.4 {
		t.Errorf("drives = %+v", drives)
	}
}

func TestClient_GetStatusWithTpms(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cars/3/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"car":{"car_id":3,"car_name":"Model Y"},"status":{"state":"asleep",
			"tpms_details":{"tpms_pressure_fl":2.9,"tpms_soft_warning_fl":true,"tpms_soft_warning_rr":false}}}}`))
	})

	st, err := c.GetStatus(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Car.CarName != "Model Y" {
		t.Errorf("car name = %q", st.Car.CarName)
	}
	d := st.Status.TpmsDetails
	if d == nil || d.WarningFL == nil || !*d.WarningFL || d.WarningFR != nil {
		t.Errorf("tpms_details = %+v", d)
	}
}

func TestClient_DetailEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/cars/1/drives/9":
			_, _ = w.Write([]byte(`{"data":{"id":9,"positions":[{"date":"x","speed":30},{"date":"y","speed":50}]}}`))
		case "/api/v1/cars/1/charges/4":
			_, _ = w.Write([]byte(`{"data":{"id":4,"charging_process":[{"charger_power":11}]}}`))
		default:
			http.NotFound(w, r)
		}
	})

	d, err := c.GetDriveDetail(context.Background(), 1, 9)
	if err != nil || len(d.Positions) != 2 {
		t.Fatalf("GetDriveDetail() = %+v, %v", d, err)
	}
	ch, err := c.GetChargeDetail(context.Background(), 1, 4)
	if err != nil || len(ch.Points) != 1 || *ch.Points[0].ChargerPowerKw != 11 {
		t.Fatalf("GetChargeDetail() = %+v, %v", ch, err)
	}

	_, err = c.GetChargeDetail(context.Background(), 1, 5)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("missing charge error = %v, want 404 StatusError", err)
	}
}

func TestClient_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	if _, err := c.ListVehicles(context.Background()); err != nil {
		t.Fatalf("ListVehicles() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.ListVehicles(context.Background())
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error = %v, want rate limit exceeded", err)
	}
}

func TestReadBodyForError_Truncates(t *testing.T) {
	body := readBodyForError(strings.NewReader(strings.Repeat("x", maxErrorBodySize+10)))
	if !strings.HasSuffix(string(body), "(truncated)") {
		t.Error("oversized body not marked truncated")
	}
}

func TestCircuitBreaker_OpensOnServerErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	cbc := NewCircuitBreakerClient(c, BreakerSettings{MinRequests: 2, FailureRate: 0.5, Timeout: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := cbc.ListVehicles(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := cbc.ListVehicles(context.Background())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if cbc.State() != "open" {
		t.Errorf("State() = %s, want open", cbc.State())
	}
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	cbc := NewCircuitBreakerClient(c, BreakerSettings{MinRequests: 1, FailureRate: 0.1})

	for i := 0; i < 5; i++ {
		_, err := cbc.GetDriveDetail(context.Background(), 1, i)
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("breaker opened on 404 responses")
		}
	}
	if cbc.State() != "closed" {
		t.Errorf("State() = %s, want closed", cbc.State())
	}
}
