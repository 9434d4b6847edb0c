// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/geocode"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/scheduler"
	"github.com/tomtom215/matesync/internal/teslamate"
)

// ProgressReporter shows a short status line while a job runs, for example
// on a dashboard. Reporting is best effort.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, message string) error
}

// Orchestrator is the data_sync_work job.
type Orchestrator struct {
	api    teslamate.API
	db     *database.DB
	state  *StateMachine
	grid   geocode.Grid
	logger zerolog.Logger

	mu            sync.RWMutex
	reporter      ProgressReporter
	onGeocodeWork func()
}

// NewOrchestrator wires the orchestrator. gridPrecision must match the one
// used by the GeocodeProcessor.
func NewOrchestrator(api teslamate.API, db *database.DB, state *StateMachine, gridPrecision int) *Orchestrator {
	return &Orchestrator{
		api:    api,
		db:     db,
		state:  state,
		grid:   geocode.NewGrid(gridPrecision),
		logger: logging.Component("sync"),
	}
}

// SetProgressReporter sets the optional progress reporter.
func (o *Orchestrator) SetProgressReporter(r ProgressReporter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reporter = r
}

// SetGeocodeTrigger sets the callback invoked after a vehicle sync added
// items to the geocode queue.
func (o *Orchestrator) SetGeocodeTrigger(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onGeocodeWork = fn
}

// Run syncs every vehicle in sequence.
func (o *Orchestrator) Run(ctx context.Context) scheduler.Result {
	start := time.Now()
	result := o.run(ctx)
	metrics.RecordSyncRun(result.String(), time.Since(start))
	return result
}

func (o *Orchestrator) run(ctx context.Context) scheduler.Result {
	vehicles, err := o.api.ListVehicles(ctx)
	if err != nil {
		switch {
		case isNotConfigured(err):
			o.logger.Debug().Msg("TeslaMate server not configured, skipping sync")
			return scheduler.ResultSuccess
		case IsNetworkError(err):
			o.logger.Warn().Err(err).Msg("Network error listing vehicles, will retry")
			return scheduler.ResultRetry
		default:
			o.logger.Error().Err(err).Msg("Failed to list vehicles")
			return scheduler.ResultFailure
		}
	}
	if len(vehicles) == 0 {
		o.logger.Info().Msg("No vehicles to sync")
		return scheduler.ResultSuccess
	}

	o.mu.RLock()
	reporter := o.reporter
	o.mu.RUnlock()

	networkIssue := false
	for i, v := range vehicles {
		if ctx.Err() != nil {
			return scheduler.ResultRetry
		}
		if reporter != nil {
			if err := reporter.ReportProgress(ctx, fmt.Sprintf("Syncing car %d/%d...", i+1, len(vehicles))); err != nil {
				o.logger.Debug().Err(err).Msg("Progress reporting unavailable for this run")
				reporter = nil
			}
		}

		complete, err := o.SyncVehicle(ctx, v)
		switch {
		case err != nil && IsNetworkError(err):
			networkIssue = true
			metrics.SyncVehicleErrors.WithLabelValues("network").Inc()
			o.logger.Warn().Err(err).Int("vehicle_id", v.CarID).Msg("Network error during vehicle sync")
		case err != nil:
			metrics.SyncVehicleErrors.WithLabelValues("other").Inc()
			o.state.MarkSyncError(ctx, v.CarID, err.Error())
		case !complete:
			networkIssue = true
		}
	}

	if networkIssue {
		return scheduler.ResultRetry
	}
	o.logger.Info().Int("vehicles", len(vehicles)).Msg("Sync completed")
	return scheduler.ResultSuccess
}
