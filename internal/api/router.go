// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package api serves the local admin API with the chi router.
//
// Routes (all JSON responses use the models.APIResponse envelope):
//
//	GET    /metrics                              Prometheus scrape endpoint
//	GET    /api/v1/health                        database and TeslaMate connectivity
//	GET    /api/v1/health/live                   liveness probe
//	GET    /api/v1/sync/status                   progress, counters, queue, jobs
//	POST   /api/v1/sync/trigger                  run the data sync now
//	POST   /api/v1/sync/vehicles/{id}/reset      clear counters and resync
//	POST   /api/v1/sync/vehicles/{id}/full-reset purge mirrored data and resync
//	POST   /api/v1/geocode/trigger               queue a geocode run
//	GET    /api/v1/jobs                          scheduled jobs
//	GET    /api/v1/tpms                          every TPMS warning vector
//	GET    /api/v1/tpms/{id}                     one TPMS warning vector
//	GET    /api/v1/ws                            live status WebSocket
//
// With server.debug set, /api/v1/debug/tpms exposes warning simulation.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/matesync/internal/middleware"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	debug         bool
}

// NewRouter creates a Router for h.
func NewRouter(h *Handler) *Router {
	var debug bool
	mwCfg := DefaultChiMiddlewareConfig()
	if h.cfg != nil {
		debug = h.cfg.Server.Debug
		mwCfg = ChiMiddlewareConfigFrom(&h.cfg.Server)
	}
	return &Router{handler: h, chiMiddleware: NewChiMiddleware(mwCfg), debug: debug}
}

// Setup returns the configured chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()
	h := router.handler

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(router.chiMiddleware.CORS())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Metrics)
		r.Use(router.chiMiddleware.RateLimit())

		r.Get("/health", h.Health)
		r.Get("/health/live", h.HealthLive)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", h.SyncStatus)
			r.Post("/trigger", h.TriggerSync)
			r.Post("/vehicles/{vehicleID}/reset", h.ResetVehicle)
			r.Post("/vehicles/{vehicleID}/full-reset", h.FullResetVehicle)
		})
		r.Post("/geocode/trigger", h.TriggerGeocode)
		r.Get("/jobs", h.Jobs)

		r.Get("/tpms", h.TpmsStates)
		r.Get("/tpms/{vehicleID}", h.TpmsState)

		r.Get("/ws", h.WebSocket)

		if router.debug {
			r.Route("/debug/tpms", func(r chi.Router) {
				r.Post("/simulate", h.SimulateWarning)
				r.Post("/{vehicleID}/clear", h.ClearWarning)
				r.Delete("/", h.ClearAllTpmsStates)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}
