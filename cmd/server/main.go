// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package main is the entry point for the MateSync server.
//
// MateSync mirrors drive and charge history from a remote TeslaMate API
// into a local DuckDB cache, reverse geocodes the cached coordinates and
// watches tire pressure warnings.
//
// # Startup
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Storage: DuckDB cache and the BadgerDB key-value store
//  3. TeslaMate client behind a circuit breaker
//  4. Sync state machine, orchestrator, geocode processor, TPMS tracker
//  5. Job scheduler with the boot jobs re-armed
//  6. Supervisor tree: scheduler, KV GC, WebSocket hub, HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. Running jobs are
// canceled, the HTTP server drains for up to the server timeout and the
// stores are closed last.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/matesync/internal/api"
	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/geocode"
	"github.com/tomtom215/matesync/internal/kvstore"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/notify"
	"github.com/tomtom215/matesync/internal/scheduler"
	"github.com/tomtom215/matesync/internal/supervisor"
	"github.com/tomtom215/matesync/internal/supervisor/services"
	syncpkg "github.com/tomtom215/matesync/internal/sync"
	"github.com/tomtom215/matesync/internal/teslamate"
	ws "github.com/tomtom215/matesync/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//nolint:gocyclo // Sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).
		Bool("teslamate_configured", cfg.Teslamate.IsConfigured()).
		Str("db_path", cfg.Database.Path).
		Msg("Starting MateSync")

	if path := config.ConfigFile(); path != "" {
		if err := config.WatchConfigFile(path, func() {
			logging.Warn().Str("path", path).Msg("Configuration file changed, restart to apply")
		}); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Failed to watch configuration file")
		}
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	kv, err := kvstore.Open(cfg.KV.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open KV store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing KV store")
		}
	}()
	if err := kv.SetBool(kvstore.SettingServerConfigured, cfg.Teslamate.IsConfigured()); err != nil {
		logging.Error().Err(err).Msg("Failed to store server configuration flag")
	}

	client := teslamate.NewClient(&cfg.Teslamate)
	tmAPI := teslamate.NewCircuitBreakerClient(client, teslamate.BreakerSettings{})

	geocoder, err := geocode.New(&cfg.Geocoding)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize geocoder")
	}

	wsHub := ws.NewHub()
	sinks, events := notify.FromConfig(&cfg.Notify)
	defer func() {
		if events == nil {
			return
		}
		if err := events.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()
	sink := notify.NewMulti(sinks, wsHub)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state := syncpkg.NewStateMachine(db)
	if err := state.Load(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to restore sync state")
	}

	orchestrator := syncpkg.NewOrchestrator(tmAPI, db, state, cfg.Geocoding.GridPrecision)
	orchestrator.SetProgressReporter(wsHub)

	processor := syncpkg.NewGeocodeProcessor(db, geocoder, syncpkg.GeocodeSettings{
		RateLimit:              cfg.Geocoding.RateLimit,
		MaxPerRun:              cfg.Geocoding.MaxPerRun,
		MaxConsecutiveFailures: cfg.Geocoding.MaxConsecutiveFailures,
		GridPrecision:          cfg.Geocoding.GridPrecision,
	})
	processor.SetProgressReporter(wsHub)

	tracker := syncpkg.NewTpmsTracker(tmAPI, kv, sink, cfg.Teslamate.IsConfigured())

	sched := scheduler.New(scheduler.Settings{
		RetryBackoff:   cfg.Sync.RetryBackoff,
		MaxBackoff:     cfg.Sync.MaxBackoff,
		OfflineRecheck: cfg.Sync.OfflineRecheck,
	}, newTeslamateConnectivity(&cfg.Teslamate))
	syncpkg.Wire(sched, orchestrator, processor, tracker,
		cfg.Sync.Interval, cfg.Tpms.Interval, cfg.Tpms.ShortIntervalMode, cfg.Tpms.ShortInterval)
	sched.Rearm()

	handler := api.NewHandler(api.Deps{
		Config:       cfg,
		DB:           db,
		State:        state,
		Scheduler:    sched,
		Orchestrator: orchestrator,
		Geocoder:     processor,
		Tpms:         tracker,
		API:          tmAPI,
		Hub:          wsHub,
		Version:      version,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler).Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.Timeout + 5*time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddDataService(services.NewSchedulerService(sched))
	tree.AddDataService(services.NewKVGCService(kv, kvstore.GCInterval))
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))
	tree.AddMessagingService(services.NewStatusForwarderService(wsHub, state))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.Timeout))

	logging.Info().Str("addr", httpServer.Addr).Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree stopped unexpectedly")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop within timeout")
	}
	logging.Info().Msg("MateSync stopped")
}
