// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/middleware"
	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/scheduler"
	syncpkg "github.com/tomtom215/matesync/internal/sync"
	"github.com/tomtom215/matesync/internal/teslamate"
	"github.com/tomtom215/matesync/internal/validation"
	ws "github.com/tomtom215/matesync/internal/websocket"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 * 1024

// Deps are the components the handlers operate on.
type Deps struct {
	Config       *config.Config
	DB           *database.DB
	State        *syncpkg.StateMachine
	Scheduler    *scheduler.Scheduler
	Orchestrator *syncpkg.Orchestrator
	Geocoder     *syncpkg.GeocodeProcessor
	Tpms         *syncpkg.TpmsTracker
	API          teslamate.API
	Hub          *ws.Hub
	Version      string
}

// Handler serves the admin API.
type Handler struct {
	cfg          *config.Config
	db           *database.DB
	state        *syncpkg.StateMachine
	sched        *scheduler.Scheduler
	orchestrator *syncpkg.Orchestrator
	geocoder     *syncpkg.GeocodeProcessor
	tpms         *syncpkg.TpmsTracker
	api          teslamate.API
	wsHub        *ws.Hub
	version      string
	startTime    time.Time
	logger       zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:          d.Config,
		db:           d.DB,
		state:        d.State,
		sched:        d.Scheduler,
		orchestrator: d.Orchestrator,
		geocoder:     d.Geocoder,
		tpms:         d.Tpms,
		api:          d.API,
		wsHub:        d.Hub,
		version:      d.Version,
		startTime:    time.Now(),
		logger:       logging.Component("api"),
	}
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *models.APIResponse) {
	response.Metadata.Timestamp = time.Now().UTC()
	response.Metadata.RequestID = middleware.GetRequestID(r.Context())

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, r, status, &models.APIResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).Msg("API error")
	}
	respondJSON(w, r, status, &models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	})
}

func respondValidationError(w http.ResponseWriter, r *http.Request, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
	})
}

// decodeJSON reads a bounded JSON body into dst. It responds and returns
// false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", nil)
		return false
	}
	return true
}

// VehicleRequest identifies a vehicle in the URL.
type VehicleRequest struct {
	VehicleID int `validate:"min=1"`
}

// vehicleParam parses and validates {vehicleID}. It responds and returns
// false on failure.
func vehicleParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "vehicleID"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_VEHICLE_ID", "vehicleID must be an integer", nil)
		return 0, false
	}
	if verr := validation.ValidateStruct(&VehicleRequest{VehicleID: id}); verr != nil {
		respondValidationError(w, r, verr)
		return 0, false
	}
	return id, true
}
