// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/matesync/internal/models"
)

const healthCheckTimeout = 5 * time.Second

// Health reports database and TeslaMate connectivity. It answers 503 only
// when the local database is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := models.HealthStatus{
		Status:              "healthy",
		Version:             h.version,
		DatabaseConnected:   h.db.Ping(ctx) == nil,
		TeslamateConfigured: h.cfg != nil && h.cfg.Teslamate.IsConfigured(),
		Uptime:              time.Since(h.startTime).Seconds(),
		CheckedAt:           time.Now().UTC(),
	}
	if status.TeslamateConfigured && h.api != nil {
		status.TeslamateReachable = h.api.Ping(ctx) == nil
	}

	code := http.StatusOK
	switch {
	case !status.DatabaseConnected:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case status.TeslamateConfigured && !status.TeslamateReachable:
		status.Status = "degraded"
	}
	respondSuccess(w, r, code, status)
}

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
