// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/scheduler"
	syncpkg "github.com/tomtom215/matesync/internal/sync"
)

// SyncOverview is the body of GET /sync/status.
type SyncOverview struct {
	Status  models.OverallSyncStatus `json:"status"`
	States  []models.SyncState       `json:"states"`
	Geocode models.GeocodeQueueStats `json:"geocode"`
	Jobs    []scheduler.Info         `json:"jobs"`
}

// TriggerResponse names the job a trigger queued.
type TriggerResponse struct {
	Job string `json:"job"`
}

// SyncStatus returns the live progress, the persisted counters, the
// geocode queue and the scheduled jobs.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	states, err := h.db.ListSyncStates(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read sync state", err)
		return
	}
	geocode, err := h.db.GeocodeQueueStats(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read geocode queue", err)
		return
	}
	if states == nil {
		states = []models.SyncState{}
	}
	respondSuccess(w, r, http.StatusOK, SyncOverview{
		Status:  h.state.Status(),
		States:  states,
		Geocode: geocode,
		Jobs:    h.sched.List(),
	})
}

// TriggerSync runs the data sync now. A sync that is already running is
// left alone.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.runSync(); err != nil {
		respondError(w, r, http.StatusInternalServerError, "SCHEDULE_FAILED", "Failed to schedule sync", err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, TriggerResponse{Job: syncpkg.JobDataSync})
}

func (h *Handler) runSync() error {
	err := h.sched.RunNow(syncpkg.JobDataSync)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		return h.sched.Schedule(syncpkg.ManualSyncRequest(h.orchestrator))
	}
	return err
}

// TriggerGeocode queues a geocode run, keeping one that is already queued.
func (h *Handler) TriggerGeocode(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Schedule(syncpkg.GeocodeRequest(h.geocoder, scheduler.KeepExisting)); err != nil {
		respondError(w, r, http.StatusInternalServerError, "SCHEDULE_FAILED", "Failed to schedule geocode run", err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, TriggerResponse{Job: syncpkg.JobGeocode})
}

// ResetVehicle clears the sync counters of a vehicle, keeping the mirrored
// data, and starts a sync.
func (h *Handler) ResetVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleParam(w, r)
	if !ok {
		return
	}
	if err := h.state.ResetForResync(r.Context(), id); err != nil {
		respondError(w, r, http.StatusInternalServerError, "RESET_FAILED", "Failed to reset sync state", err)
		return
	}
	h.afterReset(id, "reset")
	respondSuccess(w, r, http.StatusAccepted, TriggerResponse{Job: syncpkg.JobDataSync})
}

// FullResetVehicle deletes everything mirrored for a vehicle and starts a
// sync from scratch. The shared geocode cache is kept.
func (h *Handler) FullResetVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleParam(w, r)
	if !ok {
		return
	}
	if err := h.state.FullReset(r.Context(), id); err != nil {
		respondError(w, r, http.StatusInternalServerError, "RESET_FAILED", "Failed to purge vehicle", err)
		return
	}
	h.afterReset(id, "full_reset")
	respondSuccess(w, r, http.StatusAccepted, TriggerResponse{Job: syncpkg.JobDataSync})
}

func (h *Handler) afterReset(vehicleID int, kind string) {
	h.logger.Info().Int("vehicle_id", vehicleID).Str("kind", kind).Msg("Vehicle sync reset")
	if err := h.runSync(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to start sync after reset")
	}
}

// Jobs lists the scheduled background jobs.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, h.sched.List())
}
