// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package models

import "time"

// CurrentSchemaVersion is the detail-processing version. Summaries processed
// under an older version count as unprocessed and are fetched again.
const CurrentSchemaVersion = 1

// DriveSummary is a cached drive list entry
type DriveSummary struct {
	VehicleID        int       `json:"vehicle_id"`
	DriveID          int       `json:"drive_id"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	StartAddress     string    `json:"start_address,omitempty"`
	EndAddress       string    `json:"end_address,omitempty"`
	DistanceKm       float64   `json:"distance_km"`
	DurationMin      int       `json:"duration_min"`
	SpeedMax         int       `json:"speed_max"`
	DetailsProcessed int       `json:"details_processed"` // Schema version, 0 = not yet processed
}

// ChargeSummary is a cached charge list entry
type ChargeSummary struct {
	VehicleID        int       `json:"vehicle_id"`
	ChargeID         int       `json:"charge_id"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	Address          string    `json:"address,omitempty"`
	EnergyAddedKwh   float64   `json:"energy_added_kwh"`
	Cost             float64   `json:"cost"`
	DurationMin      int       `json:"duration_min"`
	DetailsProcessed int       `json:"details_processed"`
}

// Place holds the administrative names resolved for a coordinate
type Place struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	RegionName  string `json:"region_name"`
	City        string `json:"city"`
}

// DriveAggregate holds values derived from a drive detail
type DriveAggregate struct {
	VehicleID      int     `json:"vehicle_id"`
	DriveID        int     `json:"drive_id"`
	PositionCount  int     `json:"position_count"`
	MaxElevation   *int    `json:"max_elevation,omitempty"`
	MaxSpeed       int     `json:"max_speed"`
	AvgSpeed       float64 `json:"avg_speed"`
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	EndLatitude    float64 `json:"end_latitude"`
	EndLongitude   float64 `json:"end_longitude"`
	Place                  // Of the start coordinate; empty until geocoded
}

// ChargeAggregate holds values derived from a charge detail
type ChargeAggregate struct {
	VehicleID       int     `json:"vehicle_id"`
	ChargeID        int     `json:"charge_id"`
	SampleCount     int     `json:"sample_count"`
	MaxChargerPower int     `json:"max_charger_power"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Place
}

// Geocode queue item status values
const (
	GeocodePending = "pending"
	GeocodeFailed  = "failed"
)

// GeocodeQueueItem is one grid cell waiting for reverse geocoding
type GeocodeQueueItem struct {
	VehicleID int       `json:"vehicle_id"`
	GridLat   float64   `json:"grid_lat"`
	GridLon   float64   `json:"grid_lon"`
	Latitude  float64   `json:"latitude"`  // Representative raw coordinate
	Longitude float64   `json:"longitude"` // Representative raw coordinate
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// GeocodeCacheEntry is a resolved grid cell
type GeocodeCacheEntry struct {
	GridKey  string    `json:"grid_key"`
	CachedAt time.Time `json:"cached_at"`
	Place
}

// GeocodeQueueStats are the diagnostics logged at the start of every run
type GeocodeQueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Cached  int `json:"cached"`
}
