// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/matesync/internal/database"
	"github.com/tomtom215/matesync/internal/geocode"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
)

// SyncVehicle runs both phases for one vehicle. It returns false with a nil
// error when a detail fetch hit the network; the persisted counters let the
// next run resume where this one stopped.
func (o *Orchestrator) SyncVehicle(ctx context.Context, v models.Vehicle) (bool, error) {
	id := v.CarID
	st, err := o.state.GetOrCreate(ctx, id)
	if err != nil {
		return false, err
	}

	o.state.UpdateSummaryProgress(ctx, id, "Fetching drives and charges...")
	if err := o.syncSummaries(ctx, st); err != nil {
		return false, err
	}
	if err := o.state.MarkSummariesComplete(ctx, id); err != nil {
		return false, err
	}

	st, err = o.db.GetSyncState(ctx, id)
	if err != nil {
		return false, err
	}
	if st.TotalDrivesToProcess+st.TotalChargesToProcess == 0 {
		return true, nil
	}

	queued := 0
	defer func() {
		if queued > 0 {
			o.triggerGeocode(id, queued)
		}
	}()

	complete, n, err := o.syncDriveDetails(ctx, id)
	queued += n
	if err != nil || !complete {
		return false, err
	}
	if err := o.state.MarkDriveDetailsComplete(ctx, id); err != nil {
		return false, err
	}
	if st.TotalChargesToProcess == 0 {
		return true, nil
	}

	complete, n, err = o.syncChargeDetails(ctx, id)
	queued += n
	if err != nil || !complete {
		return false, err
	}
	if err := o.state.MarkSyncComplete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) syncSummaries(ctx context.Context, st *models.SyncState) error {
	id := st.VehicleID

	drives, err := o.api.GetDrives(ctx, id, st.LastDriveSyncAt, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to fetch drives: %w", err)
	}
	newDrives, err := o.db.UpsertDriveSummaries(ctx, driveSummaries(id, drives))
	if err != nil {
		return err
	}

	charges, err := o.api.GetCharges(ctx, id, st.LastChargeSyncAt, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to fetch charges: %w", err)
	}
	newCharges, err := o.db.UpsertChargeSummaries(ctx, chargeSummaries(id, charges))
	if err != nil {
		return err
	}

	o.logger.Info().Int("vehicle_id", id).
		Int("drives", len(drives)).Int("new_drives", newDrives).
		Int("charges", len(charges)).Int("new_charges", newCharges).
		Msg("Summaries fetched")
	return nil
}

// syncDriveDetails processes unprocessed drives in ascending id order. It
// returns the number of geocode items queued.
func (o *Orchestrator) syncDriveDetails(ctx context.Context, vehicleID int) (bool, int, error) {
	ids, err := o.db.UnprocessedDriveIDs(ctx, vehicleID, models.CurrentSchemaVersion)
	if err != nil {
		return false, 0, err
	}

	queued := 0
	for _, driveID := range ids {
		if ctx.Err() != nil {
			return false, queued, nil
		}
		detail, err := o.api.GetDriveDetail(ctx, vehicleID, driveID)
		if err != nil {
			if IsNetworkError(err) || ctx.Err() != nil {
				o.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Int("drive_id", driveID).
					Msg("Network error fetching drive detail, will resume")
				return false, queued, nil
			}
			metrics.SyncVehicleErrors.WithLabelValues("item").Inc()
			o.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Int("drive_id", driveID).
				Msg("Skipping drive detail")
			continue
		}

		agg := driveAggregate(vehicleID, driveID, detail)
		if place, ok := o.cachedPlace(ctx, agg.StartLatitude, agg.StartLongitude); ok {
			agg.Place = place
		}
		if err := o.db.UpsertDriveAggregate(ctx, agg); err != nil {
			return false, queued, err
		}
		if err := o.db.MarkDriveProcessed(ctx, vehicleID, driveID, models.CurrentSchemaVersion); err != nil {
			return false, queued, err
		}
		if err := o.state.UpdateDriveDetailProgress(ctx, vehicleID, driveID); err != nil {
			return false, queued, err
		}
		metrics.SyncItemsProcessed.WithLabelValues("drive").Inc()

		for _, c := range [][2]float64{
			{agg.StartLatitude, agg.StartLongitude},
			{agg.EndLatitude, agg.EndLongitude},
		} {
			ok, err := o.enqueueGeocode(ctx, vehicleID, c[0], c[1])
			if err != nil {
				return false, queued, err
			}
			if ok {
				queued++
			}
		}
	}
	return true, queued, nil
}

func (o *Orchestrator) syncChargeDetails(ctx context.Context, vehicleID int) (bool, int, error) {
	ids, err := o.db.UnprocessedChargeIDs(ctx, vehicleID, models.CurrentSchemaVersion)
	if err != nil {
		return false, 0, err
	}

	queued := 0
	for _, chargeID := range ids {
		if ctx.Err() != nil {
			return false, queued, nil
		}
		detail, err := o.api.GetChargeDetail(ctx, vehicleID, chargeID)
		if err != nil {
			if IsNetworkError(err) || ctx.Err() != nil {
				o.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Int("charge_id", chargeID).
					Msg("Network error fetching charge detail, will resume")
				return false, queued, nil
			}
			metrics.SyncVehicleErrors.WithLabelValues("item").Inc()
			o.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Int("charge_id", chargeID).
				Msg("Skipping charge detail")
			continue
		}

		agg := chargeAggregate(vehicleID, chargeID, detail)
		if place, ok := o.cachedPlace(ctx, agg.Latitude, agg.Longitude); ok {
			agg.Place = place
		}
		if err := o.db.UpsertChargeAggregate(ctx, agg); err != nil {
			return false, queued, err
		}
		if err := o.db.MarkChargeProcessed(ctx, vehicleID, chargeID, models.CurrentSchemaVersion); err != nil {
			return false, queued, err
		}
		if err := o.state.UpdateChargeDetailProgress(ctx, vehicleID, chargeID); err != nil {
			return false, queued, err
		}
		metrics.SyncItemsProcessed.WithLabelValues("charge").Inc()

		ok, err := o.enqueueGeocode(ctx, vehicleID, agg.Latitude, agg.Longitude)
		if err != nil {
			return false, queued, err
		}
		if ok {
			queued++
		}
	}
	return true, queued, nil
}

// cachedPlace returns the cached place of the coordinate's grid cell.
func (o *Orchestrator) cachedPlace(ctx context.Context, lat, lon float64) (models.Place, bool) {
	if !geocode.ValidCoordinate(lat, lon) {
		return models.Place{}, false
	}
	entry, err := o.db.GetGeocodeCache(ctx, o.grid.Key(lat, lon))
	if err != nil {
		if !errors.Is(err, database.ErrCacheMiss) {
			o.logger.Warn().Err(err).Msg("Geocode cache lookup failed")
		}
		return models.Place{}, false
	}
	return entry.Place, true
}

// enqueueGeocode queues the coordinate's grid cell unless it is invalid,
// already cached or already queued for this vehicle.
func (o *Orchestrator) enqueueGeocode(ctx context.Context, vehicleID int, lat, lon float64) (bool, error) {
	if !geocode.ValidCoordinate(lat, lon) {
		return false, nil
	}
	if _, ok := o.cachedPlace(ctx, lat, lon); ok {
		return false, nil
	}
	gridLat, gridLon := o.grid.Cell(lat, lon)
	return o.db.EnqueueGeocode(ctx, &models.GeocodeQueueItem{
		VehicleID: vehicleID,
		GridLat:   gridLat,
		GridLon:   gridLon,
		Latitude:  lat,
		Longitude: lon,
		Status:    models.GeocodePending,
	})
}

func (o *Orchestrator) triggerGeocode(vehicleID, queued int) {
	o.mu.RLock()
	fn := o.onGeocodeWork
	o.mu.RUnlock()

	o.logger.Debug().Int("vehicle_id", vehicleID).Int("queued", queued).Msg("Geocode items queued")
	if fn != nil {
		fn()
	}
}

func driveSummaries(vehicleID int, drives []models.Drive) []models.DriveSummary {
	byID := make(map[int]models.DriveSummary, len(drives))
	for i := range drives {
		d := &drives[i]
		byID[d.ID] = models.DriveSummary{
			VehicleID:    vehicleID,
			DriveID:      d.ID,
			StartDate:    parseAPITime(d.StartDate),
			EndDate:      parseAPITime(d.EndDate),
			StartAddress: d.StartAddress,
			EndAddress:   d.EndAddress,
			DistanceKm:   floatOr(d.DistanceKm),
			DurationMin:  intOr(d.DurationMin),
			SpeedMax:     intOr(d.SpeedMax),
		}
	}
	out := make([]models.DriveSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriveID < out[j].DriveID })
	return out
}

func chargeSummaries(vehicleID int, charges []models.Charge) []models.ChargeSummary {
	byID := make(map[int]models.ChargeSummary, len(charges))
	for i := range charges {
		c := &charges[i]
		byID[c.ID] = models.ChargeSummary{
			VehicleID:      vehicleID,
			ChargeID:       c.ID,
			StartDate:      parseAPITime(c.StartDate),
			EndDate:        parseAPITime(c.EndDate),
			Address:        c.Address,
			EnergyAddedKwh: floatOr(c.EnergyAddedKwh),
			Cost:           floatOr(c.Cost),
			DurationMin:    intOr(c.DurationMin),
		}
	}
	out := make([]models.ChargeSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargeID < out[j].ChargeID })
	return out
}

func driveAggregate(vehicleID, driveID int, d *models.DriveDetail) *models.DriveAggregate {
	agg := &models.DriveAggregate{
		VehicleID:     vehicleID,
		DriveID:       driveID,
		PositionCount: len(d.Positions),
		MaxSpeed:      intOr(d.SpeedMax),
	}

	speedSum, speedN := 0, 0
	for i := range d.Positions {
		p := &d.Positions[i]
		if p.Elevation != nil && (agg.MaxElevation == nil || *p.Elevation > *agg.MaxElevation) {
			e := *p.Elevation
			agg.MaxElevation = &e
		}
		if p.Speed != nil {
			speedSum += *p.Speed
			speedN++
			if *p.Speed > agg.MaxSpeed {
				agg.MaxSpeed = *p.Speed
			}
		}
	}
	switch {
	case speedN > 0:
		agg.AvgSpeed = float64(speedSum) / float64(speedN)
	case d.DistanceKm != nil && intOr(d.DurationMin) > 0:
		agg.AvgSpeed = *d.DistanceKm / float64(*d.DurationMin) * 60
	}

	agg.StartLatitude, agg.StartLongitude = floatOr(d.StartLatitude), floatOr(d.StartLongitude)
	agg.EndLatitude, agg.EndLongitude = floatOr(d.EndLatitude), floatOr(d.EndLongitude)
	if d.StartLatitude == nil || d.StartLongitude == nil {
		if p := firstPosition(d.Positions); p != nil {
			agg.StartLatitude, agg.StartLongitude = *p.Latitude, *p.Longitude
		}
	}
	if d.EndLatitude == nil || d.EndLongitude == nil {
		if p := lastPosition(d.Positions); p != nil {
			agg.EndLatitude, agg.EndLongitude = *p.Latitude, *p.Longitude
		}
	}
	return agg
}

func chargeAggregate(vehicleID, chargeID int, c *models.ChargeDetail) *models.ChargeAggregate {
	agg := &models.ChargeAggregate{
		VehicleID:   vehicleID,
		ChargeID:    chargeID,
		SampleCount: len(c.Points),
		Latitude:    floatOr(c.Latitude),
		Longitude:   floatOr(c.Longitude),
	}
	for i := range c.Points {
		if p := c.Points[i].ChargerPowerKw; p != nil && *p > agg.MaxChargerPower {
			agg.MaxChargerPower = *p
		}
	}
	return agg
}

func firstPosition(ps []models.DrivePosition) *models.DrivePosition {
	for i := range ps {
		if ps[i].Latitude != nil && ps[i].Longitude != nil {
			return &ps[i]
		}
	}
	return nil
}

func lastPosition(ps []models.DrivePosition) *models.DrivePosition {
	for i := len(ps) - 1; i >= 0; i-- {
		if ps[i].Latitude != nil && ps[i].Longitude != nil {
			return &ps[i]
		}
	}
	return nil
}

var apiTimeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// parseAPITime parses a TeslaMate timestamp. Unparseable values are zero.
func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func floatOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func intOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
