// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/geocode"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/scheduler"
)

// GeocodeSettings controls one processor run
type GeocodeSettings struct {
	RateLimit              time.Duration
	MaxPerRun              int
	MaxConsecutiveFailures int
	GridPrecision          int
}

// DefaultGeocodeSettings matches the public Nominatim usage policy.
func DefaultGeocodeSettings() GeocodeSettings {
	return GeocodeSettings{
		RateLimit:              1100 * time.Millisecond,
		MaxPerRun:              100,
		MaxConsecutiveFailures: 5,
		GridPrecision:          geocode.DefaultGridPrecision,
	}
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GeocodeProcessor is the geocode_worker job.
type GeocodeProcessor struct {
	db       *database.DB
	geocoder geocode.Geocoder
	grid     geocode.Grid
	settings GeocodeSettings
	sleep    Sleeper
	logger   zerolog.Logger

	reporter     ProgressReporter
	scheduleNext func()
}

// NewGeocodeProcessor creates a processor. Zero settings fall back to the
// defaults.
func NewGeocodeProcessor(db *database.DB, g geocode.Geocoder, settings GeocodeSettings) *GeocodeProcessor {
	def := DefaultGeocodeSettings()
	if settings.RateLimit <= 0 {
		settings.RateLimit = def.RateLimit
	}
	if settings.MaxPerRun <= 0 {
		settings.MaxPerRun = def.MaxPerRun
	}
	if settings.MaxConsecutiveFailures <= 0 {
		settings.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	return &GeocodeProcessor{
		db:       db,
		geocoder: g,
		grid:     geocode.NewGrid(settings.GridPrecision),
		settings: settings,
		sleep:    sleepContext,
		logger:   logging.Component("geocode"),
	}
}

// SetSleeper replaces the rate-limit sleep.
func (p *GeocodeProcessor) SetSleeper(s Sleeper) { p.sleep = s }

// SetProgressReporter sets the optional progress reporter.
func (p *GeocodeProcessor) SetProgressReporter(r ProgressReporter) { p.reporter = r }

// SetContinuation sets the callback that schedules the next run while
// pending items remain.
func (p *GeocodeProcessor) SetContinuation(fn func()) { p.scheduleNext = fn }

// Run drains up to MaxPerRun items. It always succeeds unless the local
// store fails; provider errors are recorded on the items.
func (p *GeocodeProcessor) Run(ctx context.Context) scheduler.Result {
	if err := p.prepare(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Failed to inspect geocode queue")
		return scheduler.ResultFailure
	}

	processed, consecutive := 0, 0
	for processed < p.settings.MaxPerRun && consecutive < p.settings.MaxConsecutiveFailures {
		if ctx.Err() != nil {
			break
		}
		item, err := p.db.NextPendingGeocode(ctx)
		if errors.Is(err, database.ErrQueueEmpty) {
			break
		}
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to read geocode queue")
			return scheduler.ResultFailure
		}

		hit, err := p.resolveFromCache(ctx, item)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to apply cached place")
			return scheduler.ResultFailure
		}
		if hit {
			processed++
			continue
		}

		place, err := p.geocoder.ReverseGeocode(ctx, item.Latitude, item.Longitude)
		metrics.RecordGeocode(p.geocoder.Name(), err)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			consecutive++
			p.logger.Warn().Err(err).Int("vehicle_id", item.VehicleID).
				Float64("grid_lat", item.GridLat).Float64("grid_lon", item.GridLon).
				Int("consecutive", consecutive).Msg("Reverse geocode failed")
			if err := p.db.MarkGeocodeFailed(ctx, item); err != nil {
				p.logger.Error().Err(err).Msg("Failed to mark geocode item failed")
				return scheduler.ResultFailure
			}
		} else {
			consecutive = 0
			if err := p.apply(ctx, item, *place, true); err != nil {
				p.logger.Error().Err(err).Msg("Failed to store geocode result")
				return scheduler.ResultFailure
			}
			processed++
			if processed%10 == 0 {
				p.reportRemaining(ctx)
			}
		}

		if err := p.sleep(ctx, p.settings.RateLimit); err != nil {
			break
		}
	}

	if consecutive >= p.settings.MaxConsecutiveFailures {
		metrics.GeocodeRunAborts.Inc()
		p.logger.Warn().Int("consecutive", consecutive).Msg("Too many consecutive geocode failures, stopping run")
	}

	pending, err := p.db.PendingGeocodeCount(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to count pending geocode items")
		return scheduler.ResultSuccess
	}
	metrics.GeocodeQueuePending.Set(float64(pending))
	p.logger.Info().Int("processed", processed).Int("pending", pending).Msg("Geocode run finished")

	if pending > 0 && p.scheduleNext != nil {
		p.scheduleNext()
	}
	return scheduler.ResultSuccess
}

// prepare logs the queue diagnostics and runs the two self-heal steps:
// failed items are retried once nothing else is pending, and per-vehicle
// progress is resynced with the cache after the queue drained.
func (p *GeocodeProcessor) prepare(ctx context.Context) error {
	stats, err := p.db.GeocodeQueueStats(ctx)
	if err != nil {
		return err
	}
	p.logger.Info().Int("total", stats.Total).Int("pending", stats.Pending).
		Int("failed", stats.Failed).Int("cached", stats.Cached).Msg("Geocode queue")
	metrics.GeocodeQueuePending.Set(float64(stats.Pending))
	metrics.GeocodeCacheEntries.Set(float64(stats.Cached))

	if stats.Pending == 0 && stats.Failed > 0 {
		n, err := p.db.ResetFailedGeocodes(ctx)
		if err != nil {
			return err
		}
		p.logger.Info().Int64("reset", n).Msg("Retrying failed geocode items")
	}

	if stats.Total == 0 && stats.Cached > 0 {
		geocoded, err := p.db.GeocodedCount(ctx)
		if err != nil {
			return err
		}
		if geocoded != stats.Cached {
			if err := p.db.SyncGeocodeProgressWithCache(ctx, stats.Cached); err != nil {
				return err
			}
			p.logger.Info().Int("was", geocoded).Int("now", stats.Cached).Msg("Geocode progress resynced with cache")
		}
	}
	return nil
}

// resolveFromCache finishes item without a network call when its cell was
// resolved after it was queued.
func (p *GeocodeProcessor) resolveFromCache(ctx context.Context, item *models.GeocodeQueueItem) (bool, error) {
	entry, err := p.db.GetGeocodeCache(ctx, p.grid.CellKey(item.GridLat, item.GridLon))
	if errors.Is(err, database.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, p.apply(ctx, item, entry.Place, false)
}

// apply writes place to every aggregate at the item's exact raw coordinate
// and removes the item from the queue.
func (p *GeocodeProcessor) apply(ctx context.Context, item *models.GeocodeQueueItem, place models.Place, cache bool) error {
	if cache {
		if err := p.db.UpsertGeocodeCache(ctx, p.grid.CellKey(item.GridLat, item.GridLon), place); err != nil {
			return err
		}
	}
	drives, err := p.db.UpdateDriveLocationsByCoordinate(ctx, item.VehicleID, item.Latitude, item.Longitude, place)
	if err != nil {
		return err
	}
	charges, err := p.db.UpdateChargeLocationsByCoordinate(ctx, item.VehicleID, item.Latitude, item.Longitude, place)
	if err != nil {
		return err
	}
	if err := p.db.MarkGeocoded(ctx, item); err != nil {
		return err
	}
	p.logger.Debug().Int("vehicle_id", item.VehicleID).Str("city", place.City).
		Int64("drives", drives).Int64("charges", charges).Msg("Location geocoded")
	return nil
}

func (p *GeocodeProcessor) reportRemaining(ctx context.Context) {
	if p.reporter == nil {
		return
	}
	remaining, err := p.db.PendingGeocodeCount(ctx)
	if err != nil {
		return
	}
	if err := p.reporter.ReportProgress(ctx, fmt.Sprintf("Geocoding locations... %d remaining", remaining)); err != nil {
		p.logger.Debug().Err(err).Msg("Progress reporting unavailable")
	}
}
