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
)

func assertProgress(t *testing.T, sm *StateMachine, vehicleID int, phase models.SyncPhase, current, total int) {
	t.Helper()
	p, ok := sm.Progress(vehicleID)
	if !ok {
		t.Fatalf("no progress for vehicle %d", vehicleID)
	}
	if p.Phase != phase || p.CurrentItem != current || p.TotalItems != total {
		t.Errorf("progress = %s %d/%d, want %s %d/%d", p.Phase, p.CurrentItem, p.TotalItems, phase, current, total)
	}
}

func seedSummaries(t *testing.T, db *database.DB, vehicleID int, driveIDs, chargeIDs []int) {
	t.Helper()
	ctx := context.Background()
	drives := make([]models.DriveSummary, 0, len(driveIDs))
	for _, id := range driveIDs {
		drives = append(drives, models.DriveSummary{VehicleID: vehicleID, DriveID: id})
	}
	charges := make([]models.ChargeSummary, 0, len(chargeIDs))
	for _, id := range chargeIDs {
		charges = append(charges, models.ChargeSummary{VehicleID: vehicleID, ChargeID: id})
	}
	if _, err := db.UpsertDriveSummaries(ctx, drives); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertChargeSummaries(ctx, charges); err != nil {
		t.Fatal(err)
	}
}

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	st, err := sm.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.SummariesSynced || st.DetailsSynced || st.TotalDrivesToProcess != 0 {
		t.Errorf("fresh state = %+v", st)
	}
	if _, err := sm.GetOrCreate(ctx, 7); err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	states, _ := db.ListSyncStates(ctx)
	if len(states) != 1 {
		t.Errorf("rows = %d, want 1", len(states))
	}
	assertProgress(t, sm, 7, models.PhaseIdle, 0, 0)
}

func TestMarkSummariesComplete_ZeroWorkCompletes(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	_, _ = sm.GetOrCreate(ctx, 1)
	if err := sm.MarkSummariesComplete(ctx, 1); err != nil {
		t.Fatalf("MarkSummariesComplete() error = %v", err)
	}

	assertProgress(t, sm, 1, models.PhaseComplete, 1, 1)
	synced, _ := sm.AreDetailsSynced(ctx, 1)
	if !synced {
		t.Error("details_synced not set after zero-work sync")
	}
	summaries, _ := sm.AreSummariesSynced(ctx, 1)
	if !summaries {
		t.Error("summaries_synced not set")
	}
}

func TestDetailProgress_CountsDrivesAndChargesTogether(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	_, _ = sm.GetOrCreate(ctx, 1)
	seedSummaries(t, db, 1, []int{1, 2}, []int{5})

	if err := sm.MarkSummariesComplete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseSyncingDriveDetails, 0, 3)

	for _, id := range []int{1, 2} {
		if err := sm.UpdateDriveDetailProgress(ctx, 1, id); err != nil {
			t.Fatal(err)
		}
	}
	assertProgress(t, sm, 1, models.PhaseSyncingDriveDetails, 2, 3)

	if err := sm.MarkDriveDetailsComplete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseSyncingChargeDetails, 2, 3)

	if err := sm.UpdateChargeDetailProgress(ctx, 1, 5); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseSyncingChargeDetails, 3, 3)

	// Extra updates never push processed past the fixed total
	if err := sm.UpdateChargeDetailProgressBatch(ctx, 1, 6, 4); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseSyncingChargeDetails, 3, 3)

	if err := sm.MarkSyncComplete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseComplete, 1, 1)
}

func TestMarkDriveDetailsComplete_NoChargesCompletes(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	_, _ = sm.GetOrCreate(ctx, 1)
	seedSummaries(t, db, 1, []int{1}, nil)
	_ = sm.MarkSummariesComplete(ctx, 1)
	_ = sm.UpdateDriveDetailProgress(ctx, 1, 1)

	if err := sm.MarkDriveDetailsComplete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseComplete, 1, 1)
}

func TestMarkSummariesComplete_ClearsDetailsSyncedOnlyWithWork(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	_, _ = sm.GetOrCreate(ctx, 1)
	_ = sm.MarkSummariesComplete(ctx, 1)
	_ = sm.MarkSummariesComplete(ctx, 1)
	if ok, _ := sm.AreDetailsSynced(ctx, 1); !ok {
		t.Error("no-op sync cleared details_synced")
	}

	seedSummaries(t, db, 1, []int{9}, nil)
	_ = sm.MarkSummariesComplete(ctx, 1)
	if ok, _ := sm.AreDetailsSynced(ctx, 1); ok {
		t.Error("details_synced still set with new work")
	}
}

func TestMarkSyncError_KeepsCounters(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	_, _ = sm.GetOrCreate(ctx, 1)
	seedSummaries(t, db, 1, []int{1, 2}, nil)
	_ = sm.MarkSummariesComplete(ctx, 1)
	_ = sm.UpdateDriveDetailProgress(ctx, 1, 1)

	sm.MarkSyncError(ctx, 1, "server exploded")
	p, _ := sm.Progress(1)
	if p.Phase != models.PhaseError || p.Message != "server exploded" {
		t.Errorf("progress = %+v", p)
	}
	st, _ := db.GetSyncState(ctx, 1)
	if st.DrivesProcessed != 1 || st.TotalDrivesToProcess != 2 {
		t.Errorf("counters changed: %+v", st)
	}
}

func TestResetForResync_KeepsCache(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	_, _ = sm.GetOrCreate(ctx, 1)
	seedSummaries(t, db, 1, []int{1}, []int{2})
	_ = sm.MarkSummariesComplete(ctx, 1)

	if err := sm.ResetForResync(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertProgress(t, sm, 1, models.PhaseIdle, 0, 0)
	st, _ := db.GetSyncState(ctx, 1)
	if st.SummariesSynced || st.TotalDrivesToProcess != 0 || !st.LastDriveSyncAt.IsZero() {
		t.Errorf("state not reset: %+v", st)
	}
	if n, _ := db.CountDriveSummaries(ctx, 1); n != 1 {
		t.Errorf("drive summaries = %d, want 1", n)
	}

	if err := sm.FullReset(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountDriveSummaries(ctx, 1); n != 0 {
		t.Errorf("drive summaries after full reset = %d, want 0", n)
	}
	if n, _ := db.CountChargeSummaries(ctx, 1); n != 0 {
		t.Errorf("charge summaries after full reset = %d, want 0", n)
	}
}

func TestSubscribe_DeliversLatestStatus(t *testing.T) {
	db := setupTestDB(t)
	sm := NewStateMachine(db)
	ctx := context.Background()

	ch, cancel := sm.Subscribe()
	defer cancel()

	initial := <-ch
	if len(initial.Vehicles) != 0 || initial.AllComplete {
		t.Errorf("initial status = %+v", initial)
	}

	_, _ = sm.GetOrCreate(ctx, 1)
	sm.UpdateSummaryProgress(ctx, 1, "Fetching")
	_ = sm.MarkSummariesComplete(ctx, 1)

	select {
	case status := <-ch:
		if !status.AllComplete || status.IsAnySyncing {
			t.Errorf("status = %+v, want only the newest (complete) value", status)
		}
	case <-time.After(time.Second):
		t.Fatal("no status delivered")
	}

	cancel()
	sm.UpdateSummaryProgress(ctx, 1, "again")
	select {
	case s := <-ch:
		t.Errorf("unsubscribed channel received %+v", s)
	default:
	}
}

func TestLoad_RestoresCompletedVehicles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := NewStateMachine(db)
	_, _ = first.GetOrCreate(ctx, 1)
	_ = first.MarkSummariesComplete(ctx, 1)
	_, _ = first.GetOrCreate(ctx, 2)

	restored := NewStateMachine(db)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertProgress(t, restored, 1, models.PhaseComplete, 1, 1)
	assertProgress(t, restored, 2, models.PhaseIdle, 0, 0)

	if status := restored.Status(); status.AllComplete || status.IsAnySyncing {
		t.Errorf("status = %+v", status)
	}
}
