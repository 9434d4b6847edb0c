// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/models"
)

// StateMachine is the only writer of sync_state rows. After every mutation
// it publishes the vehicle's progress to subscribers.
type StateMachine struct {
	db     *database.DB
	logger zerolog.Logger

	mu       sync.RWMutex
	progress map[int]models.SyncProgress

	subMu   sync.Mutex
	subs    map[int]chan models.OverallSyncStatus
	nextSub int
}

// NewStateMachine creates a state machine over db. Call Load to restore the
// progress of vehicles persisted by a previous process.
func NewStateMachine(db *database.DB) *StateMachine {
	return &StateMachine{
		db:       db,
		logger:   logging.Component("sync_state"),
		progress: make(map[int]models.SyncProgress),
		subs:     make(map[int]chan models.OverallSyncStatus),
	}
}

// Load derives the initial progress of every persisted vehicle. Vehicles
// whose details are synced start COMPLETE, all others IDLE.
func (sm *StateMachine) Load(ctx context.Context) error {
	states, err := sm.db.ListSyncStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync states: %w", err)
	}

	sm.mu.Lock()
	for i := range states {
		st := &states[i]
		p := models.SyncProgress{VehicleID: st.VehicleID, Phase: models.PhaseIdle, UpdatedAt: time.Now()}
		if st.DetailsSynced {
			p.Phase = models.PhaseComplete
			p.CurrentItem, p.TotalItems = 1, 1
		}
		sm.progress[st.VehicleID] = p
	}
	sm.mu.Unlock()

	sm.logger.Info().Int("vehicles", len(states)).Msg("Restored sync progress")
	sm.broadcast()
	return nil
}

// GetOrCreate returns the vehicle's row, inserting a fresh one on first use.
func (sm *StateMachine) GetOrCreate(ctx context.Context, vehicleID int) (*models.SyncState, error) {
	if err := sm.db.InsertSyncStateIfMissing(ctx, vehicleID); err != nil {
		return nil, err
	}
	st, err := sm.db.GetSyncState(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	_, known := sm.progress[vehicleID]
	if !known {
		sm.progress[vehicleID] = models.SyncProgress{VehicleID: vehicleID, Phase: models.PhaseIdle, UpdatedAt: time.Now()}
	}
	sm.mu.Unlock()
	if !known {
		sm.broadcast()
	}
	return st, nil
}

// AreSummariesSynced reports whether at least one summary sync completed.
func (sm *StateMachine) AreSummariesSynced(ctx context.Context, vehicleID int) (bool, error) {
	st, err := sm.GetOrCreate(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	return st.SummariesSynced, nil
}

// AreDetailsSynced reports whether the last detail phase ran to completion.
func (sm *StateMachine) AreDetailsSynced(ctx context.Context, vehicleID int) (bool, error) {
	st, err := sm.GetOrCreate(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	return st.DetailsSynced, nil
}

// UpdateSummaryProgress publishes SYNCING_SUMMARIES.
func (sm *StateMachine) UpdateSummaryProgress(_ context.Context, vehicleID int, message string) {
	sm.publish(models.SyncProgress{
		VehicleID:  vehicleID,
		Phase:      models.PhaseSyncingSummaries,
		TotalItems: 1,
		Message:    message,
	})
}

// MarkSummariesComplete records the summary cursors and fixes the detail
// totals to the number of unprocessed summaries. With nothing to process the
// vehicle goes straight to COMPLETE.
func (sm *StateMachine) MarkSummariesComplete(ctx context.Context, vehicleID int) error {
	if err := sm.db.MarkSummariesSynced(ctx, vehicleID, time.Now()); err != nil {
		return err
	}
	drives, err := sm.db.CountUnprocessedDrives(ctx, vehicleID, models.CurrentSchemaVersion)
	if err != nil {
		return err
	}
	charges, err := sm.db.CountUnprocessedCharges(ctx, vehicleID, models.CurrentSchemaVersion)
	if err != nil {
		return err
	}
	if err := sm.db.SetDetailTotals(ctx, vehicleID, drives, charges); err != nil {
		return err
	}

	total := drives + charges
	sm.logger.Debug().Int("vehicle_id", vehicleID).Int("drives", drives).Int("charges", charges).
		Msg("Summaries synced")
	if total == 0 {
		return sm.MarkSyncComplete(ctx, vehicleID)
	}
	sm.publish(models.SyncProgress{
		VehicleID:  vehicleID,
		Phase:      models.PhaseSyncingDriveDetails,
		TotalItems: total,
		Message:    fmt.Sprintf("Processing %d drives and %d charges", drives, charges),
	})
	return nil
}

// UpdateDriveDetailProgress records one processed drive.
func (sm *StateMachine) UpdateDriveDetailProgress(ctx context.Context, vehicleID, driveID int) error {
	return sm.UpdateDriveDetailProgressBatch(ctx, vehicleID, driveID, 1)
}

// UpdateDriveDetailProgressBatch records count processed drives ending at lastID.
func (sm *StateMachine) UpdateDriveDetailProgressBatch(ctx context.Context, vehicleID, lastID, count int) error {
	if err := sm.db.AdvanceDriveDetailProgress(ctx, vehicleID, lastID, count); err != nil {
		return err
	}
	return sm.publishDetailProgress(ctx, vehicleID, models.PhaseSyncingDriveDetails)
}

// UpdateChargeDetailProgress records one processed charge.
func (sm *StateMachine) UpdateChargeDetailProgress(ctx context.Context, vehicleID, chargeID int) error {
	return sm.UpdateChargeDetailProgressBatch(ctx, vehicleID, chargeID, 1)
}

// UpdateChargeDetailProgressBatch records count processed charges ending at lastID.
func (sm *StateMachine) UpdateChargeDetailProgressBatch(ctx context.Context, vehicleID, lastID, count int) error {
	if err := sm.db.AdvanceChargeDetailProgress(ctx, vehicleID, lastID, count); err != nil {
		return err
	}
	return sm.publishDetailProgress(ctx, vehicleID, models.PhaseSyncingChargeDetails)
}

// MarkDriveDetailsComplete moves on to charges, or to COMPLETE when the
// charge total is zero.
func (sm *StateMachine) MarkDriveDetailsComplete(ctx context.Context, vehicleID int) error {
	st, err := sm.db.GetSyncState(ctx, vehicleID)
	if err != nil {
		return err
	}
	if st.TotalChargesToProcess == 0 {
		return sm.MarkSyncComplete(ctx, vehicleID)
	}
	sm.publish(detailProgress(st, models.PhaseSyncingChargeDetails))
	return nil
}

// MarkSyncComplete sets details_synced and publishes COMPLETE.
func (sm *StateMachine) MarkSyncComplete(ctx context.Context, vehicleID int) error {
	if err := sm.db.MarkDetailsSynced(ctx, vehicleID); err != nil {
		return err
	}
	sm.publish(models.SyncProgress{
		VehicleID:   vehicleID,
		Phase:       models.PhaseComplete,
		CurrentItem: 1,
		TotalItems:  1,
	})
	return nil
}

// MarkSyncError publishes ERROR. Persisted counters are left as they are so
// the next run resumes from them.
func (sm *StateMachine) MarkSyncError(_ context.Context, vehicleID int, message string) {
	sm.logger.Warn().Int("vehicle_id", vehicleID).Str("error", message).Msg("Vehicle sync failed")
	sm.publish(models.SyncProgress{
		VehicleID: vehicleID,
		Phase:     models.PhaseError,
		Message:   message,
	})
}

// ResetForResync clears flags, cursors and counters. Cached rows are kept,
// so the next run re-fetches summaries and processes only what is missing.
func (sm *StateMachine) ResetForResync(ctx context.Context, vehicleID int) error {
	if err := sm.db.ResetSyncState(ctx, vehicleID); err != nil {
		return err
	}
	sm.logger.Info().Int("vehicle_id", vehicleID).Msg("Sync state reset")
	sm.publish(models.SyncProgress{VehicleID: vehicleID, Phase: models.PhaseIdle})
	return nil
}

// FullReset clears the sync state and deletes every cached row of the
// vehicle in one transaction.
func (sm *StateMachine) FullReset(ctx context.Context, vehicleID int) error {
	if err := sm.db.PurgeVehicle(ctx, vehicleID); err != nil {
		return err
	}
	sm.logger.Info().Int("vehicle_id", vehicleID).Msg("Vehicle cache purged")
	sm.publish(models.SyncProgress{VehicleID: vehicleID, Phase: models.PhaseIdle})
	return nil
}

// Progress returns the last published progress of vehicleID.
func (sm *StateMachine) Progress(vehicleID int) (models.SyncProgress, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	p, ok := sm.progress[vehicleID]
	return p, ok
}

// Status returns the aggregate progress of every known vehicle.
func (sm *StateMachine) Status() models.OverallSyncStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	vehicles := make(map[int]models.SyncProgress, len(sm.progress))
	for id, p := range sm.progress {
		vehicles[id] = p
	}
	return models.NewOverallSyncStatus(vehicles)
}

// Subscribe returns a channel that always holds the newest status. A
// subscriber that falls behind only misses intermediate values. The current
// status is delivered immediately. Call the returned func to unsubscribe.
func (sm *StateMachine) Subscribe() (<-chan models.OverallSyncStatus, func()) {
	ch := make(chan models.OverallSyncStatus, 1)

	sm.subMu.Lock()
	ch <- sm.Status()
	id := sm.nextSub
	sm.nextSub++
	sm.subs[id] = ch
	sm.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.subMu.Lock()
			delete(sm.subs, id)
			sm.subMu.Unlock()
		})
	}
}

func (sm *StateMachine) publishDetailProgress(ctx context.Context, vehicleID int, phase models.SyncPhase) error {
	st, err := sm.db.GetSyncState(ctx, vehicleID)
	if err != nil {
		return err
	}
	sm.publish(detailProgress(st, phase))
	return nil
}

// detailProgress counts drives and charges together against the fixed totals.
func detailProgress(st *models.SyncState, phase models.SyncPhase) models.SyncProgress {
	return models.SyncProgress{
		VehicleID:   st.VehicleID,
		Phase:       phase,
		CurrentItem: st.DrivesProcessed + st.ChargesProcessed,
		TotalItems:  st.TotalDrivesToProcess + st.TotalChargesToProcess,
	}
}

func (sm *StateMachine) publish(p models.SyncProgress) {
	p.UpdatedAt = time.Now()
	sm.mu.Lock()
	sm.progress[p.VehicleID] = p
	sm.mu.Unlock()
	sm.broadcast()
}

func (sm *StateMachine) broadcast() {
	sm.subMu.Lock()
	defer sm.subMu.Unlock()
	status := sm.Status()
	for _, ch := range sm.subs {
		// Replace a value the subscriber has not consumed yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- status:
		default:
		}
	}
}
