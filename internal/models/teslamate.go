// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package models

import "strconv"

// Wire types for the TeslaMate API (v1). Optional numeric fields are
// pointers because the server omits them for incomplete records.

// Vehicle is one entry of GET /api/v1/cars
type Vehicle struct {
	CarID       int    `json:"car_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"` // Older API versions
	Model       string `json:"model,omitempty"`
	TrimBadging string `json:"trim_badging,omitempty"`
	VIN         string `json:"vin,omitempty"`
}

// Label returns the human name of the vehicle, falling back to its id.
func (v Vehicle) Label() string {
	switch {
	case v.Name != "":
		return v.Name
	case v.DisplayName != "":
		return v.DisplayName
	default:
		return "Car " + strconv.Itoa(v.CarID)
	}
}

// VehicleStatus is the payload of GET /api/v1/cars/{id}/status
type VehicleStatus struct {
	Car    StatusCar   `json:"car"`
	Status StatusBlock `json:"status"`
}

type StatusCar struct {
	CarID   int    `json:"car_id"`
	CarName string `json:"car_name"`
}

type StatusBlock struct {
	DisplayName string       `json:"display_name,omitempty"`
	State       string       `json:"state,omitempty"`
	Odometer    *float64     `json:"odometer,omitempty"`
	TpmsDetails *TpmsDetails `json:"tpms_details,omitempty"` // Absent on cars without TPMS telemetry
}

// TpmsDetails carries per-wheel pressures (bar) and soft warning flags
type TpmsDetails struct {
	PressureFL *float64 `json:"tpms_pressure_fl,omitempty"`
	PressureFR *float64 `json:"tpms_pressure_fr,omitempty"`
	PressureRL *float64 `json:"tpms_pressure_rl,omitempty"`
	PressureRR *float64 `json:"tpms_pressure_rr,omitempty"`
	WarningFL  *bool    `json:"tpms_soft_warning_fl,omitempty"`
	WarningFR  *bool    `json:"tpms_soft_warning_fr,omitempty"`
	WarningRL  *bool    `json:"tpms_soft_warning_rl,omitempty"`
	WarningRR  *bool    `json:"tpms_soft_warning_rr,omitempty"`
}

// Drive is one entry of GET /api/v1/cars/{id}/drives
type Drive struct {
	ID                int      `json:"id"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	StartAddress      string   `json:"start_address,omitempty"`
	EndAddress        string   `json:"end_address,omitempty"`
	DistanceKm        *float64 `json:"distance,omitempty"`
	DurationMin       *int     `json:"duration_min,omitempty"`
	SpeedMax          *int     `json:"speed_max,omitempty"`
	PowerMax          *int     `json:"power_max,omitempty"`
	PowerMin          *int     `json:"power_min,omitempty"`
	StartBatteryLevel *int     `json:"start_battery_level,omitempty"`
	EndBatteryLevel   *int     `json:"end_battery_level,omitempty"`
	StartRatedRangeKm *float64 `json:"start_rated_range_km,omitempty"`
	EndRatedRangeKm   *float64 `json:"end_rated_range_km,omitempty"`
	OutsideTempAvg    *float64 `json:"outside_temp_avg,omitempty"`
	InsideTempAvg     *float64 `json:"inside_temp_avg,omitempty"`
	StartLatitude     *float64 `json:"start_latitude,omitempty"`
	StartLongitude    *float64 `json:"start_longitude,omitempty"`
	EndLatitude       *float64 `json:"end_latitude,omitempty"`
	EndLongitude      *float64 `json:"end_longitude,omitempty"`
}

// DriveDetail is the payload of GET /api/v1/cars/{id}/drives/{driveId}
type DriveDetail struct {
	Drive
	Positions []DrivePosition `json:"positions,omitempty"`
}

type DrivePosition struct {
	Date         string   `json:"date"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Speed        *int     `json:"speed,omitempty"`
	Power        *int     `json:"power,omitempty"`
	BatteryLevel *int     `json:"battery_level,omitempty"`
	Elevation    *int     `json:"elevation,omitempty"`
}

// Charge is one entry of GET /api/v1/cars/{id}/charges
type Charge struct {
	ID                int      `json:"id"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	Address           string   `json:"address,omitempty"`
	EnergyAddedKwh    *float64 `json:"charge_energy_added,omitempty"`
	EnergyUsedKwh     *float64 `json:"charge_energy_used,omitempty"`
	Cost              *float64 `json:"cost,omitempty"`
	DurationMin       *int     `json:"duration_min,omitempty"`
	StartBatteryLevel *int     `json:"start_battery_level,omitempty"`
	EndBatteryLevel   *int     `json:"end_battery_level,omitempty"`
	OutsideTempAvg    *float64 `json:"outside_temp_avg,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
}

// ChargeDetail is the payload of GET /api/v1/cars/{id}/charges/{chargeId}
type ChargeDetail struct {
	Charge
	Points []ChargePoint `json:"charging_process,omitempty"`
}

type ChargePoint struct {
	Date           string   `json:"date"`
	BatteryLevel   *int     `json:"battery_level,omitempty"`
	EnergyAddedKwh *float64 `json:"charge_energy_added,omitempty"`
	ChargerPowerKw *int     `json:"charger_power,omitempty"`
}
