// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package models

import (
	"fmt"
	"strings"
	"time"
)

// TirePosition identifies a wheel
type TirePosition string

const (
	TireFL TirePosition = "FL"
	TireFR TirePosition = "FR"
	TireRL TirePosition = "RL"
	TireRR TirePosition = "RR"
)

// TirePositions lists every wheel in reporting order.
var TirePositions = []TirePosition{TireFL, TireFR, TireRL, TireRR}

// FullName returns the display name used in notifications.
func (t TirePosition) FullName() string {
	switch t {
	case TireFL:
		return "Front Left"
	case TireFR:
		return "Front Right"
	case TireRL:
		return "Rear Left"
	case TireRR:
		return "Rear Right"
	default:
		return string(t)
	}
}

// ParseTirePosition accepts FL/FR/RL/RR in any case.
func ParseTirePosition(s string) (TirePosition, error) {
	t := TirePosition(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range TirePositions {
		if p == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tire position %q", s)
}

// TpmsState is the persisted warning vector of one vehicle
type TpmsState struct {
	WarningFL     bool      `json:"warning_fl"`
	WarningFR     bool      `json:"warning_fr"`
	WarningRL     bool      `json:"warning_rl"`
	WarningRR     bool      `json:"warning_rr"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// TpmsStateFromDetails converts the API block. A nil block is all-false.
func TpmsStateFromDetails(d *TpmsDetails) TpmsState {
	if d == nil {
		return TpmsState{}
	}
	flag := func(b *bool) bool { return b != nil && *b }
	return TpmsState{
		WarningFL: flag(d.WarningFL),
		WarningFR: flag(d.WarningFR),
		WarningRL: flag(d.WarningRL),
		WarningRR: flag(d.WarningRR),
	}
}

// HasAnyWarning reports whether at least one tire is flagged.
func (s TpmsState) HasAnyWarning() bool {
	return s.WarningFL || s.WarningFR || s.WarningRL || s.WarningRR
}

// WarningTires returns the flagged tires in reporting order.
func (s TpmsState) WarningTires() []TirePosition {
	var tires []TirePosition
	if s.WarningFL {
		tires = append(tires, TireFL)
	}
	if s.WarningFR {
		tires = append(tires, TireFR)
	}
	if s.WarningRL {
		tires = append(tires, TireRL)
	}
	if s.WarningRR {
		tires = append(tires, TireRR)
	}
	return tires
}

// SameWarnings reports whether both states flag the same set of tires.
func (s TpmsState) SameWarnings(o TpmsState) bool {
	return s.WarningFL == o.WarningFL && s.WarningFR == o.WarningFR &&
		s.WarningRL == o.WarningRL && s.WarningRR == o.WarningRR
}

// TpmsChangeKind discriminates TpmsStateChange
type TpmsChangeKind string

const (
	TpmsWarningStarted TpmsChangeKind = "warning_started"
	TpmsWarningCleared TpmsChangeKind = "warning_cleared"
)

// TpmsStateChange is a notification-worthy transition
type TpmsStateChange struct {
	Kind  TpmsChangeKind `json:"kind"`
	Tires []TirePosition `json:"tires,omitempty"` // Set for WarningStarted only
}

// Notification is a titled message addressed by a per-vehicle identity
type Notification struct {
	ID        int       `json:"id"`
	VehicleID int       `json:"vehicle_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
