// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package models

import (
	"reflect"
	"testing"
)

func TestNewOverallSyncStatus(t *testing.T) {
	tests := []struct {
		name         string
		phases       []SyncPhase
		wantSyncing  bool
		wantComplete bool
	}{
		{"empty", nil, false, false},
		{"all complete", []SyncPhase{PhaseComplete, PhaseComplete}, false, true},
		{"one syncing", []SyncPhase{PhaseComplete, PhaseSyncingDriveDetails}, true, false},
		{"error is not syncing", []SyncPhase{PhaseError, PhaseIdle}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vehicles := make(map[int]SyncProgress)
			for i, p := range tt.phases {
				vehicles[i+1] = SyncProgress{VehicleID: i + 1, Phase: p}
			}
			status := NewOverallSyncStatus(vehicles)
			if status.IsAnySyncing != tt.wantSyncing {
				t.Errorf("IsAnySyncing = %v, want %v", status.IsAnySyncing, tt.wantSyncing)
			}
			if status.AllComplete != tt.wantComplete {
				t.Errorf("AllComplete = %v, want %v", status.AllComplete, tt.wantComplete)
			}
		})
	}
}

func TestSyncProgressFraction(t *testing.T) {
	if f := (SyncProgress{CurrentItem: 3, TotalItems: 0}).Fraction(); f != 0 {
		t.Errorf("zero total fraction = %v", f)
	}
	if f := (SyncProgress{CurrentItem: 1, TotalItems: 4}).Fraction(); f != 0.25 {
		t.Errorf("fraction = %v, want 0.25", f)
	}
}

func TestTpmsStateFromDetails(t *testing.T) {
	yes, no := true, false
	if s := TpmsStateFromDetails(nil); s.HasAnyWarning() {
		t.Error("nil details should have no warnings")
	}

	s := TpmsStateFromDetails(&TpmsDetails{WarningFL: &yes, WarningFR: &no, WarningRR: &yes})
	want := []TirePosition{TireFL, TireRR}
	if got := s.WarningTires(); !reflect.DeepEqual(got, want) {
		t.Errorf("WarningTires() = %v, want %v", got, want)
	}
}

func TestParseTirePosition(t *testing.T) {
	if p, err := ParseTirePosition("rl"); err != nil || p != TireRL {
		t.Errorf("ParseTirePosition(rl) = %v, %v", p, err)
	}
	if _, err := ParseTirePosition("spare"); err == nil {
		t.Error("expected error for unknown tire")
	}
	if TireFR.FullName() != "Front Right" {
		t.Errorf("FullName = %q", TireFR.FullName())
	}
}
