// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package models

import "time"

// SyncPhase is one stage of a vehicle's sync lifecycle
type SyncPhase string

const (
	PhaseIdle                 SyncPhase = "IDLE"
	PhaseSyncingSummaries     SyncPhase = "SYNCING_SUMMARIES"
	PhaseSyncingDriveDetails  SyncPhase = "SYNCING_DRIVE_DETAILS"
	PhaseSyncingChargeDetails SyncPhase = "SYNCING_CHARGE_DETAILS"
	PhaseComplete             SyncPhase = "COMPLETE"
	PhaseError                SyncPhase = "ERROR"
)

// Active reports whether the phase is an in-flight sync phase.
func (p SyncPhase) Active() bool {
	switch p {
	case PhaseSyncingSummaries, PhaseSyncingDriveDetails, PhaseSyncingChargeDetails:
		return true
	}
	return false
}

// SyncState is the persisted per-vehicle sync bookkeeping row
type SyncState struct {
	VehicleID             int       `json:"vehicle_id"`
	SummariesSynced       bool      `json:"summaries_synced"`
	DetailsSynced         bool      `json:"details_synced"`
	LastDriveSyncAt       time.Time `json:"last_drive_sync_at"`  // Zero until the first summary sync
	LastChargeSyncAt      time.Time `json:"last_charge_sync_at"` // Zero until the first summary sync
	LastDriveDetailID     int       `json:"last_drive_detail_id"`
	LastChargeDetailID    int       `json:"last_charge_detail_id"`
	DrivesProcessed       int       `json:"drives_processed"`
	ChargesProcessed      int       `json:"charges_processed"`
	TotalDrivesToProcess  int       `json:"total_drives_to_process"`
	TotalChargesToProcess int       `json:"total_charges_to_process"`
}

// SyncProgress is the transient, observable progress of one vehicle
type SyncProgress struct {
	VehicleID   int       `json:"vehicle_id"`
	Phase       SyncPhase `json:"phase"`
	CurrentItem int       `json:"current_item"`
	TotalItems  int       `json:"total_items"`
	Message     string    `json:"message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fraction returns progress in [0,1]; 0 when there is nothing to count.
func (p SyncProgress) Fraction() float64 {
	if p.TotalItems <= 0 {
		return 0
	}
	f := float64(p.CurrentItem) / float64(p.TotalItems)
	if f > 1 {
		return 1
	}
	return f
}

// OverallSyncStatus aggregates the progress of every known vehicle
type OverallSyncStatus struct {
	Vehicles     map[int]SyncProgress `json:"vehicles"`
	IsAnySyncing bool                 `json:"is_any_syncing"`
	AllComplete  bool                 `json:"all_complete"`
}

// NewOverallSyncStatus derives the aggregate flags from per-vehicle progress.
// The map is used as-is; callers pass a copy they no longer mutate.
func NewOverallSyncStatus(vehicles map[int]SyncProgress) OverallSyncStatus {
	status := OverallSyncStatus{Vehicles: vehicles, AllComplete: len(vehicles) > 0}
	for _, p := range vehicles {
		if p.Phase.Active() {
			status.IsAnySyncing = true
		}
		if p.Phase != PhaseComplete {
			status.AllComplete = false
		}
	}
	return status
}
