// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/matesync/internal/models"
)

// UpsertDriveSummaries inserts or refreshes drive list entries. The
// details_processed version of an existing row is never touched.
func (db *DB) UpsertDriveSummaries(ctx context.Context, drives []models.DriveSummary) (int, error) {
	if len(drives) == 0 {
		return 0, nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	inserted := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range drives {
			d := &drives[i]
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT count(*) > 0 FROM drive_summaries WHERE vehicle_id = ? AND drive_id = ?`,
				d.VehicleID, d.DriveID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check drive %d: %w", d.DriveID, err)
			}
			if !exists {
				inserted++
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO drive_summaries (vehicle_id, drive_id, start_date, end_date,
					start_address, end_address, distance_km, duration_min, speed_max)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (vehicle_id, drive_id) DO UPDATE SET
					start_date = EXCLUDED.start_date,
					end_date = EXCLUDED.end_date,
					start_address = EXCLUDED.start_address,
					end_address = EXCLUDED.end_address,
					distance_km = EXCLUDED.distance_km,
					duration_min = EXCLUDED.duration_min,
					speed_max = EXCLUDED.speed_max`,
				d.VehicleID, d.DriveID, nullTime(d.StartDate), nullTime(d.EndDate),
				d.StartAddress, d.EndAddress, d.DistanceKm, d.DurationMin, d.SpeedMax); err != nil {
				return fmt.Errorf("failed to upsert drive %d: %w", d.DriveID, err)
			}
		}
		return nil
	})
	observe("UPSERT", "drive_summaries", start, err)
	return inserted, err
}

// UpsertChargeSummaries inserts or refreshes charge list entries.
func (db *DB) UpsertChargeSummaries(ctx context.Context, charges []models.ChargeSummary) (int, error) {
	if len(charges) == 0 {
		return 0, nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	inserted := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range charges {
			c := &charges[i]
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT count(*) > 0 FROM charge_summaries WHERE vehicle_id = ? AND charge_id = ?`,
				c.VehicleID, c.ChargeID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check charge %d: %w", c.ChargeID, err)
			}
			if !exists {
				inserted++
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO charge_summaries (vehicle_id, charge_id, start_date, end_date,
					address, energy_added_kwh, cost, duration_min)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (vehicle_id, charge_id) DO UPDATE SET
					start_date = EXCLUDED.start_date,
					end_date = EXCLUDED.end_date,
					address = EXCLUDED.address,
					energy_added_kwh = EXCLUDED.energy_added_kwh,
					cost = EXCLUDED.cost,
					duration_min = EXCLUDED.duration_min`,
				c.VehicleID, c.ChargeID, nullTime(c.StartDate), nullTime(c.EndDate),
				c.Address, c.EnergyAddedKwh, c.Cost, c.DurationMin); err != nil {
				return fmt.Errorf("failed to upsert charge %d: %w", c.ChargeID, err)
			}
		}
		return nil
	})
	observe("UPSERT", "charge_summaries", start, err)
	return inserted, err
}

// CountUnprocessedDrives counts drives whose detail has not been processed
// under the given schema version.
func (db *DB) CountUnprocessedDrives(ctx context.Context, vehicleID, version int) (int, error) {
	return db.count(ctx, "drive_summaries",
		`SELECT count(*) FROM drive_summaries WHERE vehicle_id = ? AND details_processed < ?`,
		vehicleID, version)
}

// CountUnprocessedCharges is the charge counterpart of CountUnprocessedDrives.
func (db *DB) CountUnprocessedCharges(ctx context.Context, vehicleID, version int) (int, error) {
	return db.count(ctx, "charge_summaries",
		`SELECT count(*) FROM charge_summaries WHERE vehicle_id = ? AND details_processed < ?`,
		vehicleID, version)
}

// CountDriveSummaries counts every cached drive of vehicleID.
func (db *DB) CountDriveSummaries(ctx context.Context, vehicleID int) (int, error) {
	return db.count(ctx, "drive_summaries",
		`SELECT count(*) FROM drive_summaries WHERE vehicle_id = ?`, vehicleID)
}

// CountChargeSummaries counts every cached charge of vehicleID.
func (db *DB) CountChargeSummaries(ctx context.Context, vehicleID int) (int, error) {
	return db.count(ctx, "charge_summaries",
		`SELECT count(*) FROM charge_summaries WHERE vehicle_id = ?`, vehicleID)
}

// UnprocessedDriveIDs lists unprocessed drive ids in ascending order.
func (db *DB) UnprocessedDriveIDs(ctx context.Context, vehicleID, version int) ([]int, error) {
	return db.ids(ctx, "drive_summaries",
		`SELECT drive_id FROM drive_summaries
		WHERE vehicle_id = ? AND details_processed < ?
		ORDER BY drive_id`, vehicleID, version)
}

// UnprocessedChargeIDs lists unprocessed charge ids in ascending order.
func (db *DB) UnprocessedChargeIDs(ctx context.Context, vehicleID, version int) ([]int, error) {
	return db.ids(ctx, "charge_summaries",
		`SELECT charge_id FROM charge_summaries
		WHERE vehicle_id = ? AND details_processed < ?
		ORDER BY charge_id`, vehicleID, version)
}

// MarkDriveProcessed records that a drive detail was ingested under version.
func (db *DB) MarkDriveProcessed(ctx context.Context, vehicleID, driveID, version int) error {
	return db.exec(ctx, "UPDATE", "drive_summaries",
		`UPDATE drive_summaries SET details_processed = ? WHERE vehicle_id = ? AND drive_id = ?`,
		version, vehicleID, driveID)
}

// MarkChargeProcessed records that a charge detail was ingested under version.
func (db *DB) MarkChargeProcessed(ctx context.Context, vehicleID, chargeID, version int) error {
	return db.exec(ctx, "UPDATE", "charge_summaries",
		`UPDATE charge_summaries SET details_processed = ? WHERE vehicle_id = ? AND charge_id = ?`,
		version, vehicleID, chargeID)
}

func (db *DB) count(ctx context.Context, table, query string, args ...any) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var n int
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n)
	observe("SELECT", table, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (db *DB) ids(ctx context.Context, table, query string, args ...any) ([]int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		observe("SELECT", table, start, err)
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer closeWithLog(rows, "rows")

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		out = append(out, id)
	}
	err = rows.Err()
	observe("SELECT", table, start, err)
	return out, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
