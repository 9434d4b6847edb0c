// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package kvstore

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/matesync/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTpmsState_RoundTripAndDefault(t *testing.T) {
	s := openTestStore(t)

	state, found, err := s.GetTpmsState(3)
	if err != nil {
		t.Fatalf("GetTpmsState() error = %v", err)
	}
	if found || state.HasAnyWarning() {
		t.Errorf("unknown vehicle = %+v found=%v, want all-false not found", state, found)
	}

	checked := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	if err := s.PutTpmsState(3, models.TpmsState{WarningRL: true, LastCheckedAt: checked}); err != nil {
		t.Fatal(err)
	}
	state, found, err = s.GetTpmsState(3)
	if err != nil || !found {
		t.Fatalf("GetTpmsState() = found %v err %v", found, err)
	}
	if !state.WarningRL || state.WarningFL {
		t.Errorf("state = %+v, want RL only", state)
	}
	if !state.LastCheckedAt.Equal(checked) {
		t.Errorf("LastCheckedAt = %v, want %v", state.LastCheckedAt, checked)
	}
}

func TestListAndDeleteTpmsStates(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []int{1, 2, 12} {
		if err := s.PutTpmsState(id, models.TpmsState{WarningFR: id == 12}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetBool(SettingServerConfigured, true); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListTpmsStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[12].WarningFR {
		t.Errorf("ListTpmsStates() = %+v", all)
	}

	if err := s.DeleteAllTpmsStates(); err != nil {
		t.Fatal(err)
	}
	all, _ = s.ListTpmsStates()
	if len(all) != 0 {
		t.Errorf("states after delete = %d, want 0", len(all))
	}
	if v, _ := s.GetBool(SettingServerConfigured, false); !v {
		t.Error("settings removed along with tpms states")
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)

	v, err := s.GetBool("missing", true)
	if err != nil || !v {
		t.Errorf("GetBool(missing) = %v, %v; want default true", v, err)
	}
	if err := s.SetBool("flag", false); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetBool("flag", true); v {
		t.Error("GetBool(flag) = true, want stored false")
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC() on in-memory store error = %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.PutTpmsState(1, models.TpmsState{}); !errors.Is(err, ErrClosed) {
		t.Errorf("PutTpmsState() after close error = %v, want ErrClosed", err)
	}
}
