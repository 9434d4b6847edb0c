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

// ErrAggregateNotFound is returned when no aggregate row matches.
var ErrAggregateNotFound = errors.New("aggregate not found")

// UpsertDriveAggregate stores the values derived from a drive detail. Place
// fields already resolved for the row are preserved when a is not geocoded.
func (db *DB) UpsertDriveAggregate(ctx context.Context, a *models.DriveAggregate) error {
	return db.exec(ctx, "UPSERT", "drive_aggregates", `
		INSERT INTO drive_aggregates (vehicle_id, drive_id, position_count, max_elevation,
			max_speed, avg_speed, start_latitude, start_longitude, end_latitude, end_longitude,
			country_code, country_name, region_name, city)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vehicle_id, drive_id) DO UPDATE SET
			position_count = EXCLUDED.position_count,
			max_elevation = EXCLUDED.max_elevation,
			max_speed = EXCLUDED.max_speed,
			avg_speed = EXCLUDED.avg_speed,
			start_latitude = EXCLUDED.start_latitude,
			start_longitude = EXCLUDED.start_longitude,
			end_latitude = EXCLUDED.end_latitude,
			end_longitude = EXCLUDED.end_longitude,
			country_code = CASE WHEN EXCLUDED.country_code = '' THEN drive_aggregates.country_code ELSE EXCLUDED.country_code END,
			country_name = CASE WHEN EXCLUDED.country_code = '' THEN drive_aggregates.country_name ELSE EXCLUDED.country_name END,
			region_name = CASE WHEN EXCLUDED.country_code = '' THEN drive_aggregates.region_name ELSE EXCLUDED.region_name END,
			city = CASE WHEN EXCLUDED.country_code = '' THEN drive_aggregates.city ELSE EXCLUDED.city END`,
		a.VehicleID, a.DriveID, a.PositionCount, a.MaxElevation,
		a.MaxSpeed, a.AvgSpeed, a.StartLatitude, a.StartLongitude, a.EndLatitude, a.EndLongitude,
		a.CountryCode, a.CountryName, a.RegionName, a.City)
}

// UpsertChargeAggregate stores the values derived from a charge detail.
func (db *DB) UpsertChargeAggregate(ctx context.Context, a *models.ChargeAggregate) error {
	return db.exec(ctx, "UPSERT", "charge_aggregates", `
		INSERT INTO charge_aggregates (vehicle_id, charge_id, sample_count, max_charger_power,
			latitude, longitude, country_code, country_name, region_name, city)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vehicle_id, charge_id) DO UPDATE SET
			sample_count = EXCLUDED.sample_count,
			max_charger_power = EXCLUDED.max_charger_power,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			country_code = CASE WHEN EXCLUDED.country_code = '' THEN charge_aggregates.country_code ELSE EXCLUDED.country_code END,
			country_name = CASE WHEN EXCLUDED.country_code = '' THEN charge_aggregates.country_name ELSE EXCLUDED.country_name END,
			region_name = CASE WHEN EXCLUDED.country_code = '' THEN charge_aggregates.region_name ELSE EXCLUDED.region_name END,
			city = CASE WHEN EXCLUDED.country_code = '' THEN charge_aggregates.city ELSE EXCLUDED.city END`,
		a.VehicleID, a.ChargeID, a.SampleCount, a.MaxChargerPower,
		a.Latitude, a.Longitude, a.CountryCode, a.CountryName, a.RegionName, a.City)
}

// UpdateDriveLocationsByCoordinate writes place to every drive aggregate of
// vehicleID whose start coordinate equals (lat, lon) exactly.
func (db *DB) UpdateDriveLocationsByCoordinate(ctx context.Context, vehicleID int, lat, lon float64, place models.Place) (int64, error) {
	return db.execRows(ctx, "drive_aggregates", `
		UPDATE drive_aggregates
		SET country_code = ?, country_name = ?, region_name = ?, city = ?
		WHERE vehicle_id = ? AND start_latitude = ? AND start_longitude = ?`,
		place.CountryCode, place.CountryName, place.RegionName, place.City, vehicleID, lat, lon)
}

// UpdateChargeLocationsByCoordinate writes place to every charge aggregate of
// vehicleID located exactly at (lat, lon).
func (db *DB) UpdateChargeLocationsByCoordinate(ctx context.Context, vehicleID int, lat, lon float64, place models.Place) (int64, error) {
	return db.execRows(ctx, "charge_aggregates", `
		UPDATE charge_aggregates
		SET country_code = ?, country_name = ?, region_name = ?, city = ?
		WHERE vehicle_id = ? AND latitude = ? AND longitude = ?`,
		place.CountryCode, place.CountryName, place.RegionName, place.City, vehicleID, lat, lon)
}

// GetDriveAggregate returns one drive aggregate.
func (db *DB) GetDriveAggregate(ctx context.Context, vehicleID, driveID int) (*models.DriveAggregate, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var a models.DriveAggregate
	var maxElevation sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `
		SELECT vehicle_id, drive_id, position_count, max_elevation, max_speed, avg_speed,
			start_latitude, start_longitude, end_latitude, end_longitude,
			country_code, country_name, region_name, city
		FROM drive_aggregates WHERE vehicle_id = ? AND drive_id = ?`, vehicleID, driveID).
		Scan(&a.VehicleID, &a.DriveID, &a.PositionCount, &maxElevation, &a.MaxSpeed, &a.AvgSpeed,
			&a.StartLatitude, &a.StartLongitude, &a.EndLatitude, &a.EndLongitude,
			&a.CountryCode, &a.CountryName, &a.RegionName, &a.City)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drive aggregate %d: %w", driveID, err)
	}
	if maxElevation.Valid {
		v := int(maxElevation.Int64)
		a.MaxElevation = &v
	}
	return &a, nil
}

// GetChargeAggregate returns one charge aggregate.
func (db *DB) GetChargeAggregate(ctx context.Context, vehicleID, chargeID int) (*models.ChargeAggregate, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var a models.ChargeAggregate
	err := db.conn.QueryRowContext(ctx, `
		SELECT vehicle_id, charge_id, sample_count, max_charger_power, latitude, longitude,
			country_code, country_name, region_name, city
		FROM charge_aggregates WHERE vehicle_id = ? AND charge_id = ?`, vehicleID, chargeID).
		Scan(&a.VehicleID, &a.ChargeID, &a.SampleCount, &a.MaxChargerPower, &a.Latitude, &a.Longitude,
			&a.CountryCode, &a.CountryName, &a.RegionName, &a.City)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charge aggregate %d: %w", chargeID, err)
	}
	return &a, nil
}

// CountAggregates returns the number of drive and charge aggregates of vehicleID.
func (db *DB) CountAggregates(ctx context.Context, vehicleID int) (drives, charges int, err error) {
	if drives, err = db.count(ctx, "drive_aggregates",
		`SELECT count(*) FROM drive_aggregates WHERE vehicle_id = ?`, vehicleID); err != nil {
		return 0, 0, err
	}
	if charges, err = db.count(ctx, "charge_aggregates",
		`SELECT count(*) FROM charge_aggregates WHERE vehicle_id = ?`, vehicleID); err != nil {
		return 0, 0, err
	}
	return drives, charges, nil
}

func (db *DB) execRows(ctx context.Context, table, query string, args ...any) (int64, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	observe("UPDATE", table, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
