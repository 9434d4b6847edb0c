// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package api

import (
	"net/http"

	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/validation"
)

// SimulateWarningRequest is the body of POST /debug/tpms/simulate.
type SimulateWarningRequest struct {
	VehicleID int    `json:"vehicle_id" validate:"min=1"`
	Tire      string `json:"tire" validate:"required,tire"`
}

// TpmsChangeResponse reports the transition a debug call produced. Change
// is nil when the stored vector did not change.
type TpmsChangeResponse struct {
	VehicleID int                     `json:"vehicle_id"`
	Change    *models.TpmsStateChange `json:"change"`
}

// TpmsStates returns every stored warning vector keyed by vehicle.
func (h *Handler) TpmsStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.tpms.States()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "KV_ERROR", "Failed to read TPMS states", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, states)
}

// TpmsState returns the stored warning vector of one vehicle.
func (h *Handler) TpmsState(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleParam(w, r)
	if !ok {
		return
	}
	state, found, err := h.tpms.State(id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "KV_ERROR", "Failed to read TPMS state", err)
		return
	}
	if !found {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No TPMS state for vehicle", nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, state)
}

// SimulateWarning flags one tire through the normal transition path, so
// the notification sinks fire as for a real warning.
func (h *Handler) SimulateWarning(w http.ResponseWriter, r *http.Request) {
	var req SimulateWarningRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}
	tire, _ := models.ParseTirePosition(req.Tire)

	change, err := h.tpms.SimulateWarning(r.Context(), req.VehicleID, tire)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "SIMULATION_FAILED", "Failed to simulate warning", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, TpmsChangeResponse{VehicleID: req.VehicleID, Change: change})
}

// ClearWarning clears every flag of one vehicle.
func (h *Handler) ClearWarning(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleParam(w, r)
	if !ok {
		return
	}
	change, err := h.tpms.ClearWarning(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "SIMULATION_FAILED", "Failed to clear warning", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, TpmsChangeResponse{VehicleID: id, Change: change})
}

// ClearAllTpmsStates forgets every stored vector.
func (h *Handler) ClearAllTpmsStates(w http.ResponseWriter, r *http.Request) {
	if err := h.tpms.ClearAllStates(); err != nil {
		respondError(w, r, http.StatusInternalServerError, "KV_ERROR", "Failed to clear TPMS states", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
