// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/scheduler"
)

func enqueueCells(t *testing.T, db *database.DB, vehicleID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		lat, lon := 40+float64(i), 10+float64(i)
		ok, err := db.EnqueueGeocode(context.Background(), &models.GeocodeQueueItem{
			VehicleID: vehicleID, GridLat: lat, GridLon: lon, Latitude: lat, Longitude: lon,
			Status: models.GeocodePending,
		})
		if err != nil || !ok {
			t.Fatalf("EnqueueGeocode() = %v, %v", ok, err)
		}
		// created_at orders the queue
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestProcessor(db *database.DB, g *fakeGeocoder, settings GeocodeSettings) (*GeocodeProcessor, *sleepRecorder, *int) {
	p := NewGeocodeProcessor(db, g, settings)
	rec := &sleepRecorder{}
	p.SetSleeper(rec.sleep)
	continued := new(int)
	p.SetContinuation(func() { *continued++ })
	return p, rec, continued
}

func TestGeocode_StopsAfterConsecutiveFailures(t *testing.T) {
	db := setupTestDB(t)
	enqueueCells(t, db, 1, 8)

	g := &fakeGeocoder{err: errProviderDown}
	p, rec, continued := newTestProcessor(db, g, GeocodeSettings{})

	if got := p.Run(context.Background()); got != scheduler.ResultSuccess {
		t.Fatalf("Run() = %v, want success", got)
	}
	if g.calls != 5 {
		t.Errorf("geocoder calls = %d, want 5", g.calls)
	}
	if len(rec.sleeps) != 5 {
		t.Errorf("sleeps = %d, want one per call", len(rec.sleeps))
	}
	for _, d := range rec.sleeps {
		if d != 1100*time.Millisecond {
			t.Errorf("sleep = %v, want 1.1s", d)
		}
	}

	stats, _ := db.GeocodeQueueStats(context.Background())
	if stats.Failed != 5 || stats.Pending != 3 {
		t.Errorf("stats = %+v, want 5 failed / 3 pending", stats)
	}
	if *continued != 1 {
		t.Errorf("continuation called %d times, want 1", *continued)
	}
}

func TestGeocode_SuccessPropagatesToExactCoordinate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, a := range []models.DriveAggregate{
		{VehicleID: 1, DriveID: 1, StartLatitude: 52.5201, StartLongitude: 13.4049},
		{VehicleID: 1, DriveID: 2, StartLatitude: 52.5222, StartLongitude: 13.4011},
	} {
		agg := a
		if err := db.UpsertDriveAggregate(ctx, &agg); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = db.EnqueueGeocode(ctx, &models.GeocodeQueueItem{
		VehicleID: 1, GridLat: 52.52, GridLon: 13.40, Latitude: 52.5201, Longitude: 13.4049,
		Status: models.GeocodePending,
	})

	g := &fakeGeocoder{place: models.Place{CountryCode: "de", CountryName: "Germany", RegionName: "Berlin", City: "Berlin"}}
	p, rec, continued := newTestProcessor(db, g, GeocodeSettings{})
	if got := p.Run(ctx); got != scheduler.ResultSuccess {
		t.Fatalf("Run() = %v", got)
	}

	a1, _ := db.GetDriveAggregate(ctx, 1, 1)
	a2, _ := db.GetDriveAggregate(ctx, 1, 2)
	if a1.City != "Berlin" {
		t.Errorf("exact coordinate city = %q, want Berlin", a1.City)
	}
	if a2.City != "" {
		t.Errorf("same-cell different coordinate city = %q, want empty", a2.City)
	}
	if _, err := db.GetGeocodeCache(ctx, "52.52,13.40"); err != nil {
		t.Errorf("cache entry missing: %v", err)
	}
	if n, _ := db.PendingGeocodeCount(ctx); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	if n, _ := db.VehicleGeocodedCount(ctx, 1); n != 1 {
		t.Errorf("geocoded count = %d, want 1", n)
	}
	if len(rec.sleeps) != 1 || *continued != 0 {
		t.Errorf("sleeps = %d continued = %d, want 1/0", len(rec.sleeps), *continued)
	}
}

func TestGeocode_MaxPerRunSchedulesContinuation(t *testing.T) {
	db := setupTestDB(t)
	enqueueCells(t, db, 1, 5)

	g := &fakeGeocoder{place: models.Place{CountryCode: "it", City: "Roma"}}
	p, _, continued := newTestProcessor(db, g, GeocodeSettings{MaxPerRun: 3})

	if got := p.Run(context.Background()); got != scheduler.ResultSuccess {
		t.Fatalf("Run() = %v", got)
	}
	if g.calls != 3 {
		t.Errorf("geocoder calls = %d, want 3", g.calls)
	}
	if n, _ := db.PendingGeocodeCount(context.Background()); n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}
	if *continued != 1 {
		t.Errorf("continuation called %d times, want 1", *continued)
	}
}

func TestGeocode_RetriesFailedWhenNothingPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	enqueueCells(t, db, 1, 2)

	failing := &fakeGeocoder{err: errProviderDown}
	p, _, _ := newTestProcessor(db, failing, GeocodeSettings{})
	p.Run(ctx)
	if stats, _ := db.GeocodeQueueStats(ctx); stats.Failed != 2 || stats.Pending != 0 {
		t.Fatalf("stats = %+v, want 2 failed", stats)
	}

	ok := &fakeGeocoder{place: models.Place{CountryCode: "fr", City: "Lyon"}}
	p, _, _ = newTestProcessor(db, ok, GeocodeSettings{})
	p.Run(ctx)
	if ok.calls != 2 {
		t.Errorf("geocoder calls = %d, want 2", ok.calls)
	}
	if stats, _ := db.GeocodeQueueStats(ctx); stats.Total != 0 || stats.Cached != 2 {
		t.Errorf("stats = %+v, want empty queue and 2 cached", stats)
	}
}

func TestGeocode_CacheHitSkipsNetwork(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	enqueueCells(t, db, 1, 1)
	if err := db.UpsertGeocodeCache(ctx, "40.00,10.00", models.Place{City: "Cached"}); err != nil {
		t.Fatal(err)
	}

	g := &fakeGeocoder{err: errProviderDown}
	p, rec, _ := newTestProcessor(db, g, GeocodeSettings{})
	p.Run(ctx)
	if g.calls != 0 || len(rec.sleeps) != 0 {
		t.Errorf("calls = %d sleeps = %d, want 0/0", g.calls, len(rec.sleeps))
	}
	if n, _ := db.PendingGeocodeCount(ctx); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestGeocode_ResyncsProgressWithCache(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	for _, key := range []string{"1.00,1.00", "2.00,2.00", "3.00,3.00"} {
		_ = db.UpsertGeocodeCache(ctx, key, models.Place{City: key})
	}

	p, _, _ := newTestProcessor(db, &fakeGeocoder{}, GeocodeSettings{})
	if got := p.Run(ctx); got != scheduler.ResultSuccess {
		t.Fatalf("Run() = %v", got)
	}
	if n, _ := db.GeocodedCount(ctx); n != 3 {
		t.Errorf("geocoded count = %d, want 3", n)
	}
}

func TestGeocode_CancelledContextStops(t *testing.T) {
	db := setupTestDB(t)
	enqueueCells(t, db, 1, 3)

	ctx, cancel := context.WithCancel(context.Background())
	g := &fakeGeocoder{place: models.Place{City: "X"}}
	p := NewGeocodeProcessor(db, g, GeocodeSettings{})
	p.SetSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})

	if got := p.Run(ctx); got != scheduler.ResultSuccess {
		t.Fatalf("Run() = %v", got)
	}
	if g.calls != 1 {
		t.Errorf("geocoder calls = %d, want 1", g.calls)
	}
}
