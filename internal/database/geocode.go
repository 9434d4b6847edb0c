// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/matesync/internal/models"
)

// ErrQueueEmpty is returned by NextPendingGeocode when nothing is pending.
var ErrQueueEmpty = errors.New("geocode queue empty")

// ErrCacheMiss is returned by GetGeocodeCache for an unknown grid cell.
var ErrCacheMiss = errors.New("geocode cache miss")

// EnqueueGeocode adds a pending item for the grid cell of item. It reports
// false when the vehicle already has that cell queued.
func (db *DB) EnqueueGeocode(ctx context.Context, item *models.GeocodeQueueItem) (bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO geocode_queue (vehicle_id, grid_lat, grid_lon, latitude, longitude, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?)
		ON CONFLICT (vehicle_id, grid_lat, grid_lon) DO NOTHING`,
		item.VehicleID, item.GridLat, item.GridLon, item.Latitude, item.Longitude, time.Now().UTC())
	observe("INSERT", "geocode_queue", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue geocode item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// NextPendingGeocode returns the oldest pending item across all vehicles.
func (db *DB) NextPendingGeocode(ctx context.Context) (*models.GeocodeQueueItem, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var it models.GeocodeQueueItem
	err := db.conn.QueryRowContext(ctx, `
		SELECT vehicle_id, grid_lat, grid_lon, latitude, longitude, status, attempts, created_at
		FROM geocode_queue
		WHERE status = 'pending'
		ORDER BY created_at, vehicle_id, grid_lat, grid_lon
		LIMIT 1`).
		Scan(&it.VehicleID, &it.GridLat, &it.GridLon, &it.Latitude, &it.Longitude,
			&it.Status, &it.Attempts, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		observe("SELECT", "geocode_queue", start, nil)
		return nil, ErrQueueEmpty
	}
	observe("SELECT", "geocode_queue", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to pop geocode item: %w", err)
	}
	return &it, nil
}

// MarkGeocodeFailed bumps the attempt counter and parks the item as failed.
func (db *DB) MarkGeocodeFailed(ctx context.Context, item *models.GeocodeQueueItem) error {
	return db.exec(ctx, "UPDATE", "geocode_queue", `
		UPDATE geocode_queue SET attempts = attempts + 1, status = 'failed'
		WHERE vehicle_id = ? AND grid_lat = ? AND grid_lon = ?`,
		item.VehicleID, item.GridLat, item.GridLon)
}

// MarkGeocoded removes the item from the queue and increments the vehicle's
// geocoded count in one transaction.
func (db *DB) MarkGeocoded(ctx context.Context, item *models.GeocodeQueueItem) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM geocode_queue WHERE vehicle_id = ? AND grid_lat = ? AND grid_lon = ?`,
			item.VehicleID, item.GridLat, item.GridLon); err != nil {
			return fmt.Errorf("failed to delete geocode item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO geocode_progress (vehicle_id, geocoded_count) VALUES (?, 1)
			ON CONFLICT (vehicle_id) DO UPDATE SET geocoded_count = geocode_progress.geocoded_count + 1`,
			item.VehicleID); err != nil {
			return fmt.Errorf("failed to increment geocode progress: %w", err)
		}
		return nil
	})
	observe("DELETE", "geocode_queue", start, err)
	return err
}

// ResetFailedGeocodes returns every failed item to pending.
func (db *DB) ResetFailedGeocodes(ctx context.Context) (int64, error) {
	return db.execRows(ctx, "geocode_queue",
		`UPDATE geocode_queue SET status = 'pending' WHERE status = 'failed'`)
}

// GeocodeQueueStats returns the queue diagnostics.
func (db *DB) GeocodeQueueStats(ctx context.Context) (models.GeocodeQueueStats, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var s models.GeocodeQueueStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM geocode_queue),
			(SELECT count(*) FROM geocode_queue WHERE status = 'pending'),
			(SELECT count(*) FROM geocode_queue WHERE status = 'failed'),
			(SELECT count(*) FROM geocode_cache)`).
		Scan(&s.Total, &s.Pending, &s.Failed, &s.Cached)
	observe("SELECT", "geocode_queue", start, err)
	if err != nil {
		return s, fmt.Errorf("failed to read geocode queue stats: %w", err)
	}
	return s, nil
}

// PendingGeocodeCount counts pending items across all vehicles.
func (db *DB) PendingGeocodeCount(ctx context.Context) (int, error) {
	return db.count(ctx, "geocode_queue",
		`SELECT count(*) FROM geocode_queue WHERE status = 'pending'`)
}

// GetGeocodeCache returns the cached place for gridKey or ErrCacheMiss.
func (db *DB) GetGeocodeCache(ctx context.Context, gridKey string) (*models.GeocodeCacheEntry, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var e models.GeocodeCacheEntry
	err := db.conn.QueryRowContext(ctx, `
		SELECT grid_key, country_code, country_name, region_name, city, cached_at
		FROM geocode_cache WHERE grid_key = ?`, gridKey).
		Scan(&e.GridKey, &e.CountryCode, &e.CountryName, &e.RegionName, &e.City, &e.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		observe("SELECT", "geocode_cache", start, nil)
		return nil, ErrCacheMiss
	}
	observe("SELECT", "geocode_cache", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode cache: %w", err)
	}
	return &e, nil
}

// UpsertGeocodeCache stores place under gridKey.
func (db *DB) UpsertGeocodeCache(ctx context.Context, gridKey string, place models.Place) error {
	return db.exec(ctx, "UPSERT", "geocode_cache", `
		INSERT INTO geocode_cache (grid_key, country_code, country_name, region_name, city, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (grid_key) DO UPDATE SET
			country_code = EXCLUDED.country_code,
			country_name = EXCLUDED.country_name,
			region_name = EXCLUDED.region_name,
			city = EXCLUDED.city,
			cached_at = EXCLUDED.cached_at`,
		gridKey, place.CountryCode, place.CountryName, place.RegionName, place.City, time.Now().UTC())
}

// GeocodedCount sums geocoded_count over every vehicle.
func (db *DB) GeocodedCount(ctx context.Context) (int, error) {
	return db.count(ctx, "geocode_progress",
		`SELECT CAST(coalesce(sum(geocoded_count), 0) AS INTEGER) FROM geocode_progress`)
}

// VehicleGeocodedCount returns geocoded_count for one vehicle, 0 when absent.
func (db *DB) VehicleGeocodedCount(ctx context.Context, vehicleID int) (int, error) {
	return db.count(ctx, "geocode_progress",
		`SELECT CAST(coalesce(sum(geocoded_count), 0) AS INTEGER) FROM geocode_progress WHERE vehicle_id = ?`,
		vehicleID)
}

// SyncGeocodeProgressWithCache replaces every progress row with a single
// row (vehicle 0) holding the cache size. Used when the queue is empty and
// the counters have drifted from the cache.
func (db *DB) SyncGeocodeProgressWithCache(ctx context.Context, cached int) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM geocode_progress`); err != nil {
			return fmt.Errorf("failed to clear geocode progress: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO geocode_progress (vehicle_id, geocoded_count) VALUES (0, ?)`, cached); err != nil {
			return fmt.Errorf("failed to insert geocode progress: %w", err)
		}
		return nil
	})
	observe("UPDATE", "geocode_progress", start, err)
	return err
}
