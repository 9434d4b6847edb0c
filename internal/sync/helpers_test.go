// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/kvstore"
	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/teslamate"
)

// testDBSemaphore serializes DuckDB instances across the package's tests.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB"})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func setupTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	s, err := kvstore.Open(":memory:")
	if err != nil {
		t.Fatalf("kvstore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// fakeAPI is an in-memory TeslaMate server. Errors keyed by id are returned
// once and then cleared, so a retried run sees the item succeed.
type fakeAPI struct {
	mu sync.Mutex

	vehicles    []models.Vehicle
	listErr     error
	statuses    map[int]*models.VehicleStatus
	drives      map[int][]models.Drive
	charges     map[int][]models.Charge
	driveErr    map[int]error
	chargeErr   map[int]error
	summaryErr  error
	detailCalls map[int]int

	driveFrom []time.Time
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		statuses:    make(map[int]*models.VehicleStatus),
		drives:      make(map[int][]models.Drive),
		charges:     make(map[int][]models.Charge),
		driveErr:    make(map[int]error),
		chargeErr:   make(map[int]error),
		detailCalls: make(map[int]int),
	}
}

var _ teslamate.API = (*fakeAPI)(nil)

func (f *fakeAPI) Ping(context.Context) error { return nil }

func (f *fakeAPI) ListVehicles(context.Context) ([]models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vehicles, f.listErr
}

func (f *fakeAPI) GetStatus(_ context.Context, carID int) (*models.VehicleStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.statuses[carID]
	if !ok {
		return nil, &teslamate.StatusError{Path: "api/v1/cars/status", StatusCode: 404}
	}
	return s, nil
}

func (f *fakeAPI) GetDrives(_ context.Context, carID int, from, _ time.Time) ([]models.Drive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driveFrom = append(f.driveFrom, from)
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return f.drives[carID], nil
}

func (f *fakeAPI) GetCharges(_ context.Context, carID int, _, _ time.Time) ([]models.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges[carID], nil
}

func (f *fakeAPI) GetDriveDetail(_ context.Context, carID, driveID int) (*models.DriveDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[driveID]++
	if err, ok := f.driveErr[driveID]; ok {
		delete(f.driveErr, driveID)
		return nil, err
	}
	for _, d := range f.drives[carID] {
		if d.ID == driveID {
			return &models.DriveDetail{Drive: d, Positions: []models.DrivePosition{
				{Speed: ptr(40), Elevation: ptr(100)},
				{Speed: ptr(80), Elevation: ptr(140)},
			}}, nil
		}
	}
	return nil, &teslamate.StatusError{Path: "api/v1/cars/drives", StatusCode: 404}
}

func (f *fakeAPI) GetChargeDetail(_ context.Context, carID, chargeID int) (*models.ChargeDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.chargeErr[chargeID]; ok {
		delete(f.chargeErr, chargeID)
		return nil, err
	}
	for _, c := range f.charges[carID] {
		if c.ID == chargeID {
			return &models.ChargeDetail{Charge: c, Points: []models.ChargePoint{
				{ChargerPowerKw: ptr(11)}, {ChargerPowerKw: ptr(150)},
			}}, nil
		}
	}
	return nil, &teslamate.StatusError{Path: "api/v1/cars/charges", StatusCode: 404}
}

func testDrive(id int, lat, lon float64) models.Drive {
	return models.Drive{
		ID:             id,
		StartDate:      "2026-04-01T08:00:00Z",
		EndDate:        "2026-04-01T08:30:00Z",
		DistanceKm:     ptr(21.5),
		DurationMin:    ptr(30),
		StartLatitude:  ptr(lat),
		StartLongitude: ptr(lon),
		EndLatitude:    ptr(lat + 0.1),
		EndLongitude:   ptr(lon + 0.1),
	}
}

func testCharge(id int, lat, lon float64) models.Charge {
	return models.Charge{
		ID:             id,
		StartDate:      "2026-04-01T18:00:00Z",
		EndDate:        "2026-04-01T19:00:00Z",
		EnergyAddedKwh: ptr(30.2),
		Latitude:       ptr(lat),
		Longitude:      ptr(lon),
	}
}

// recordingReporter records progress messages.
type recordingReporter struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingReporter) ReportProgress(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

// memorySink records notifications.
type memorySink struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Notify(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *memorySink) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.sent...)
}

// fakeGeocoder returns place for every call, or err when set.
type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
	place models.Place
	err   error
}

var errProviderDown = errors.New("provider returned 503")

func (g *fakeGeocoder) Name() string { return "fake" }

func (g *fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (*models.Place, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	p := g.place
	return &p, nil
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}
