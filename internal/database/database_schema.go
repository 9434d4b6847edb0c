// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// Timestamps that drive sync cursors are stored as unix milliseconds
// (0 = never) so a zero value survives a round trip unchanged.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			vehicle_id INTEGER PRIMARY KEY,
			summaries_synced BOOLEAN NOT NULL DEFAULT false,
			details_synced BOOLEAN NOT NULL DEFAULT false,
			last_drive_sync_at BIGINT NOT NULL DEFAULT 0,
			last_charge_sync_at BIGINT NOT NULL DEFAULT 0,
			last_drive_detail_id INTEGER NOT NULL DEFAULT 0,
			last_charge_detail_id INTEGER NOT NULL DEFAULT 0,
			drives_processed INTEGER NOT NULL DEFAULT 0,
			charges_processed INTEGER NOT NULL DEFAULT 0,
			total_drives_to_process INTEGER NOT NULL DEFAULT 0,
			total_charges_to_process INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS drive_summaries (
			vehicle_id INTEGER NOT NULL,
			drive_id INTEGER NOT NULL,
			start_date TIMESTAMP,
			end_date TIMESTAMP,
			start_address TEXT,
			end_address TEXT,
			distance_km DOUBLE,
			duration_min INTEGER,
			speed_max INTEGER,
			details_processed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (vehicle_id, drive_id)
		);`,
		`CREATE TABLE IF NOT EXISTS charge_summaries (
			vehicle_id INTEGER NOT NULL,
			charge_id INTEGER NOT NULL,
			start_date TIMESTAMP,
			end_date TIMESTAMP,
			address TEXT,
			energy_added_kwh DOUBLE,
			cost DOUBLE,
			duration_min INTEGER,
			details_processed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (vehicle_id, charge_id)
		);`,
		`CREATE TABLE IF NOT EXISTS drive_aggregates (
			vehicle_id INTEGER NOT NULL,
			drive_id INTEGER NOT NULL,
			position_count INTEGER NOT NULL DEFAULT 0,
			max_elevation INTEGER,
			max_speed INTEGER NOT NULL DEFAULT 0,
			avg_speed DOUBLE NOT NULL DEFAULT 0,
			start_latitude DOUBLE,
			start_longitude DOUBLE,
			end_latitude DOUBLE,
			end_longitude DOUBLE,
			country_code TEXT NOT NULL DEFAULT '',
			country_name TEXT NOT NULL DEFAULT '',
			region_name TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (vehicle_id, drive_id)
		);`,
		`CREATE TABLE IF NOT EXISTS charge_aggregates (
			vehicle_id INTEGER NOT NULL,
			charge_id INTEGER NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			max_charger_power INTEGER NOT NULL DEFAULT 0,
			latitude DOUBLE,
			longitude DOUBLE,
			country_code TEXT NOT NULL DEFAULT '',
			country_name TEXT NOT NULL DEFAULT '',
			region_name TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (vehicle_id, charge_id)
		);`,
		`CREATE TABLE IF NOT EXISTS geocode_queue (
			vehicle_id INTEGER NOT NULL,
			grid_lat DOUBLE NOT NULL,
			grid_lon DOUBLE NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
			PRIMARY KEY (vehicle_id, grid_lat, grid_lon)
		);`,
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			grid_key TEXT PRIMARY KEY,
			country_code TEXT NOT NULL DEFAULT '',
			country_name TEXT NOT NULL DEFAULT '',
			region_name TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			cached_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		);`,
		`CREATE TABLE IF NOT EXISTS geocode_progress (
			vehicle_id INTEGER PRIMARY KEY,
			geocoded_count INTEGER NOT NULL DEFAULT 0
		);`,
	}
}
