// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/kvstore"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
	"github.com/tomtom215/matesync/internal/notify"
	"github.com/tomtom215/matesync/internal/scheduler"
	"github.com/tomtom215/matesync/internal/teslamate"
)

// TpmsNotificationBase offsets notification IDs so each vehicle owns one
// replaceable notification.
const TpmsNotificationBase = 2000

const tpmsTitle = "Tire pressure warning"

// TpmsStore persists the per-vehicle warning vector.
type TpmsStore interface {
	GetTpmsState(vehicleID int) (models.TpmsState, bool, error)
	PutTpmsState(vehicleID int, state models.TpmsState) error
	ListTpmsStates() (map[int]models.TpmsState, error)
	DeleteAllTpmsStates() error
	GetBool(key string, def bool) (bool, error)
}

// TpmsTracker is the tpms_pressure_work job.
type TpmsTracker struct {
	api        teslamate.API
	store      TpmsStore
	sink       notify.Sink
	configured bool
	now        func() time.Time
	logger     zerolog.Logger

	mu    sync.Mutex // Serializes runs with the simulation routes
	rearm func()
}

// NewTpmsTracker creates a tracker. configured is false when no TeslaMate
// URL is set, in which case every run is a no-op.
func NewTpmsTracker(api teslamate.API, store TpmsStore, sink notify.Sink, configured bool) *TpmsTracker {
	return &TpmsTracker{
		api:        api,
		store:      store,
		sink:       sink,
		configured: configured,
		now:        time.Now,
		logger:     logging.Component("tpms"),
	}
}

// SetRearm sets the callback run after every invocation. Short-interval mode
// uses it to schedule the next one-shot.
func (t *TpmsTracker) SetRearm(fn func()) { t.rearm = fn }

// Run polls every vehicle once.
func (t *TpmsTracker) Run(ctx context.Context) scheduler.Result {
	if t.rearm != nil {
		defer t.rearm()
	}
	if !t.isConfigured() {
		t.logger.Debug().Msg("TeslaMate server not configured, skipping TPMS check")
		return scheduler.ResultSuccess
	}

	vehicles, err := t.api.ListVehicles(ctx)
	if err != nil {
		if isNotConfigured(err) {
			return scheduler.ResultSuccess
		}
		t.logger.Warn().Err(err).Msg("Failed to list vehicles for TPMS check")
		return scheduler.ResultRetry
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range vehicles {
		if ctx.Err() != nil {
			break
		}
		if err := t.checkVehicle(ctx, v); err != nil {
			metrics.TpmsChecks.WithLabelValues("error").Inc()
			t.logger.Warn().Err(err).Int("vehicle_id", v.CarID).Msg("TPMS check failed")
			continue
		}
		metrics.TpmsChecks.WithLabelValues("ok").Inc()
	}
	return scheduler.ResultSuccess
}

func (t *TpmsTracker) isConfigured() bool {
	if !t.configured {
		return false
	}
	ok, err := t.store.GetBool(kvstore.SettingServerConfigured, true)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read server_configured setting")
		return false
	}
	return ok
}

func (t *TpmsTracker) checkVehicle(ctx context.Context, v models.Vehicle) error {
	status, err := t.api.GetStatus(ctx, v.CarID)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	current := models.TpmsStateFromDetails(status.Status.TpmsDetails)

	name := v.Label()
	if status.Car.CarName != "" {
		name = status.Car.CarName
	}
	_, err = t.transition(ctx, v.CarID, name, current)
	return err
}

// transition persists current and notifies when the warned set changed.
// The state is written even when notifying fails.
func (t *TpmsTracker) transition(ctx context.Context, vehicleID int, name string, current models.TpmsState) (*models.TpmsStateChange, error) {
	previous, _, err := t.store.GetTpmsState(vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to read TPMS state: %w", err)
	}

	change := DetectStateChange(previous, current)
	current.LastCheckedAt = t.now()
	if err := t.store.PutTpmsState(vehicleID, current); err != nil {
		return nil, fmt.Errorf("failed to store TPMS state: %w", err)
	}
	if change == nil {
		return nil, nil
	}

	metrics.TpmsTransitions.WithLabelValues(string(change.Kind)).Inc()
	n := buildTpmsNotification(vehicleID, name, change, current.LastCheckedAt)
	if err := t.sink.Notify(ctx, n); err != nil {
		return change, fmt.Errorf("failed to send TPMS notification: %w", err)
	}
	return change, nil
}

// DetectStateChange compares two warning vectors.
//
//	none -> some       WarningStarted(current set)
//	some -> none       WarningCleared
//	some -> other set  WarningStarted(new set)
//	otherwise          nil
func DetectStateChange(previous, current models.TpmsState) *models.TpmsStateChange {
	was, is := previous.HasAnyWarning(), current.HasAnyWarning()
	switch {
	case !was && is:
		return &models.TpmsStateChange{Kind: models.TpmsWarningStarted, Tires: current.WarningTires()}
	case was && !is:
		return &models.TpmsStateChange{Kind: models.TpmsWarningCleared}
	case was && is && !previous.SameWarnings(current):
		return &models.TpmsStateChange{Kind: models.TpmsWarningStarted, Tires: current.WarningTires()}
	default:
		return nil
	}
}

func buildTpmsNotification(vehicleID int, name string, change *models.TpmsStateChange, at time.Time) models.Notification {
	var body string
	switch change.Kind {
	case models.TpmsWarningStarted:
		tires := make([]string, len(change.Tires))
		for i, tire := range change.Tires {
			tires[i] = tire.FullName()
		}
		body = fmt.Sprintf("%s: low pressure on %s", name, strings.Join(tires, ", "))
	default:
		body = name + ": tire pressure back to normal"
	}
	return models.Notification{
		ID:        TpmsNotificationBase + vehicleID,
		VehicleID: vehicleID,
		Title:     tpmsTitle,
		Body:      body,
		Kind:      string(change.Kind),
		CreatedAt: at,
	}
}

// State returns the stored vector of vehicleID.
func (t *TpmsTracker) State(vehicleID int) (models.TpmsState, bool, error) {
	return t.store.GetTpmsState(vehicleID)
}

// States returns every stored vector.
func (t *TpmsTracker) States() (map[int]models.TpmsState, error) {
	return t.store.ListTpmsStates()
}

// ClearAllStates forgets every stored vector, so the next poll treats any
// active warning as new.
func (t *TpmsTracker) ClearAllStates() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.DeleteAllTpmsStates()
}

// SimulateWarning flags tire on top of the stored vector and runs the
// normal transition path.
func (t *TpmsTracker) SimulateWarning(ctx context.Context, vehicleID int, tire models.TirePosition) (*models.TpmsStateChange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, _, err := t.store.GetTpmsState(vehicleID)
	if err != nil {
		return nil, err
	}
	switch tire {
	case models.TireFL:
		current.WarningFL = true
	case models.TireFR:
		current.WarningFR = true
	case models.TireRL:
		current.WarningRL = true
	case models.TireRR:
		current.WarningRR = true
	default:
		return nil, fmt.Errorf("unknown tire position %q", tire)
	}
	return t.transition(ctx, vehicleID, models.Vehicle{CarID: vehicleID}.Label(), current)
}

// ClearWarning clears every flag of vehicleID through the transition path.
func (t *TpmsTracker) ClearWarning(ctx context.Context, vehicleID int) (*models.TpmsStateChange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(ctx, vehicleID, models.Vehicle{CarID: vehicleID}.Label(), models.TpmsState{})
}
