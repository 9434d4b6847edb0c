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

// ErrSyncStateNotFound is returned when a vehicle has no sync_state row.
var ErrSyncStateNotFound = errors.New("sync state not found")

const syncStateColumns = `vehicle_id, summaries_synced, details_synced,
	last_drive_sync_at, last_charge_sync_at,
	last_drive_detail_id, last_charge_detail_id,
	drives_processed, charges_processed,
	total_drives_to_process, total_charges_to_process`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncState(row rowScanner) (*models.SyncState, error) {
	var s models.SyncState
	var driveAt, chargeAt int64
	err := row.Scan(&s.VehicleID, &s.SummariesSynced, &s.DetailsSynced,
		&driveAt, &chargeAt,
		&s.LastDriveDetailID, &s.LastChargeDetailID,
		&s.DrivesProcessed, &s.ChargesProcessed,
		&s.TotalDrivesToProcess, &s.TotalChargesToProcess)
	if err != nil {
		return nil, err
	}
	s.LastDriveSyncAt = fromMillis(driveAt)
	s.LastChargeSyncAt = fromMillis(chargeAt)
	return &s, nil
}

// GetSyncState returns the row for vehicleID or ErrSyncStateNotFound.
func (db *DB) GetSyncState(ctx context.Context, vehicleID int) (*models.SyncState, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+syncStateColumns+` FROM sync_state WHERE vehicle_id = ?`, vehicleID)
	s, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		observe("SELECT", "sync_state", start, nil)
		return nil, ErrSyncStateNotFound
	}
	observe("SELECT", "sync_state", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state for vehicle %d: %w", vehicleID, err)
	}
	return s, nil
}

// ListSyncStates returns every sync_state row ordered by vehicle.
func (db *DB) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+syncStateColumns+` FROM sync_state ORDER BY vehicle_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var states []models.SyncState
	for rows.Next() {
		s, err := scanSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

// InsertSyncStateIfMissing creates a fresh row for vehicleID. Existing rows
// are left untouched.
func (db *DB) InsertSyncStateIfMissing(ctx context.Context, vehicleID int) error {
	return db.exec(ctx, "INSERT", "sync_state",
		`INSERT INTO sync_state (vehicle_id) VALUES (?) ON CONFLICT (vehicle_id) DO NOTHING`, vehicleID)
}

// MarkSummariesSynced sets summaries_synced and both summary cursors to at.
func (db *DB) MarkSummariesSynced(ctx context.Context, vehicleID int, at time.Time) error {
	return db.exec(ctx, "UPDATE", "sync_state",
		`UPDATE sync_state
		SET summaries_synced = true,
			last_drive_sync_at = ?,
			last_charge_sync_at = ?
		WHERE vehicle_id = ?`, millis(at), millis(at), vehicleID)
}

// SetDetailTotals fixes the detail-phase totals and zeroes the processed
// counters. details_synced is cleared only when there is work to do, so a
// vehicle that is already complete is not flagged incomplete by a no-op sync.
func (db *DB) SetDetailTotals(ctx context.Context, vehicleID, drives, charges int) error {
	return db.exec(ctx, "UPDATE", "sync_state",
		`UPDATE sync_state
		SET total_drives_to_process = ?,
			total_charges_to_process = ?,
			drives_processed = 0,
			charges_processed = 0,
			details_synced = CASE WHEN ? > 0 THEN false ELSE details_synced END
		WHERE vehicle_id = ?`, drives, charges, drives+charges, vehicleID)
}

// AdvanceDriveDetailProgress moves the drive cursor to lastID and adds count
// to drives_processed in one statement, capped at the fixed total.
func (db *DB) AdvanceDriveDetailProgress(ctx context.Context, vehicleID, lastID, count int) error {
	return db.exec(ctx, "UPDATE", "sync_state",
		`UPDATE sync_state
		SET last_drive_detail_id = ?,
			drives_processed = LEAST(drives_processed + ?, total_drives_to_process)
		WHERE vehicle_id = ?`, lastID, count, vehicleID)
}

// AdvanceChargeDetailProgress is the charge counterpart of AdvanceDriveDetailProgress.
func (db *DB) AdvanceChargeDetailProgress(ctx context.Context, vehicleID, lastID, count int) error {
	return db.exec(ctx, "UPDATE", "sync_state",
		`UPDATE sync_state
		SET last_charge_detail_id = ?,
			charges_processed = LEAST(charges_processed + ?, total_charges_to_process)
		WHERE vehicle_id = ?`, lastID, count, vehicleID)
}

// MarkDetailsSynced sets details_synced.
func (db *DB) MarkDetailsSynced(ctx context.Context, vehicleID int) error {
	return db.exec(ctx, "UPDATE", "sync_state",
		`UPDATE sync_state SET details_synced = true WHERE vehicle_id = ?`, vehicleID)
}

// ResetSyncState returns flags, cursors and counters to their defaults.
// Cached summaries and aggregates are kept.
func (db *DB) ResetSyncState(ctx context.Context, vehicleID int) error {
	return db.exec(ctx, "UPDATE", "sync_state", resetSyncStateQuery, vehicleID)
}

const resetSyncStateQuery = `UPDATE sync_state
	SET summaries_synced = false,
		details_synced = false,
		last_drive_sync_at = 0,
		last_charge_sync_at = 0,
		last_drive_detail_id = 0,
		last_charge_detail_id = 0,
		drives_processed = 0,
		charges_processed = 0,
		total_drives_to_process = 0,
		total_charges_to_process = 0
	WHERE vehicle_id = ?`

// PurgeVehicle deletes every cached row of vehicleID and resets its sync
// state in one transaction. The shared geocode cache is kept.
func (db *DB) PurgeVehicle(ctx context.Context, vehicleID int) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"drive_summaries", "charge_summaries",
			"drive_aggregates", "charge_aggregates",
			"geocode_queue", "geocode_progress",
		} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE vehicle_id = ?`, vehicleID); err != nil {
				return fmt.Errorf("failed to purge %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, resetSyncStateQuery, vehicleID); err != nil {
			return fmt.Errorf("failed to reset sync state: %w", err)
		}
		return nil
	})
	observe("DELETE", "vehicle", start, err)
	return err
}

func (db *DB) exec(ctx context.Context, operation, table, query string, args ...any) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query, args...)
	observe(operation, table, start, err)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", operation, table, err)
	}
	return nil
}
