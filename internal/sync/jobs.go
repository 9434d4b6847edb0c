// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"time"

	"github.com/tomtom215/matesync/internal/scheduler"
)

// Unique job names
const (
	JobDataSync = "data_sync_work"
	JobGeocode  = "geocode_worker"
	JobTpms     = "tpms_pressure_work"
)

// minPeriodicInterval is the floor below which TPMS polling must use the
// self-rescheduling one-shot instead of a periodic job.
const minPeriodicInterval = 15 * time.Minute

// SyncRequest is the periodic data sync. It is kept on reschedule so a boot
// re-arm does not reset a pending run.
func SyncRequest(o *Orchestrator, interval time.Duration) scheduler.Request {
	return scheduler.Request{
		Name:        JobDataSync,
		Policy:      scheduler.KeepExisting,
		Kind:        scheduler.Periodic,
		Interval:    interval,
		Constraints: scheduler.Constraints{RequiresNetwork: true},
		Job:         o.Run,
	}
}

// ManualSyncRequest runs the data sync once, now. A sync that is already
// running or pending wins.
func ManualSyncRequest(o *Orchestrator) scheduler.Request {
	return scheduler.Request{
		Name:        JobDataSync,
		Policy:      scheduler.KeepExisting,
		Kind:        scheduler.OneShot,
		Constraints: scheduler.Constraints{RequiresNetwork: true},
		Job:         o.Run,
	}
}

// GeocodeRequest is one geocode run. The processor's own continuation
// replaces whatever is queued; ingestion keeps an existing one.
func GeocodeRequest(p *GeocodeProcessor, policy scheduler.Policy) scheduler.Request {
	return scheduler.Request{
		Name:        JobGeocode,
		Policy:      policy,
		Kind:        scheduler.OneShot,
		Constraints: scheduler.Constraints{RequiresNetwork: true},
		Job:         p.Run,
	}
}

// TpmsRequest returns the TPMS polling job. In short mode (or when interval
// is below the periodic floor) the job is a one-shot that the tracker re-arms
// after every run.
func TpmsRequest(t *TpmsTracker, interval time.Duration, short bool, shortInterval time.Duration) scheduler.Request {
	if short || interval < minPeriodicInterval {
		if shortInterval <= 0 {
			shortInterval = interval
		}
		return scheduler.Request{
			Name:         JobTpms,
			Policy:       scheduler.Replace,
			Kind:         scheduler.OneShot,
			InitialDelay: shortInterval,
			Constraints:  scheduler.Constraints{RequiresNetwork: true},
			Job:          t.Run,
		}
	}
	return scheduler.Request{
		Name:        JobTpms,
		Policy:      scheduler.KeepExisting,
		Kind:        scheduler.Periodic,
		Interval:    interval,
		Constraints: scheduler.Constraints{RequiresNetwork: true},
		Job:         t.Run,
	}
}

// Wire connects the workers to sched and registers the boot jobs:
//   - ingestion triggers a geocode run, keeping one that is already queued
//   - the processor continues itself with REPLACE while items remain
//   - in short mode the tracker re-arms its one-shot after every run
func Wire(sched *scheduler.Scheduler, o *Orchestrator, p *GeocodeProcessor, t *TpmsTracker,
	syncInterval, tpmsInterval time.Duration, tpmsShort bool, tpmsShortInterval time.Duration) {
	logger := o.logger

	o.SetGeocodeTrigger(func() {
		if err := sched.Schedule(GeocodeRequest(p, scheduler.KeepExisting)); err != nil {
			logger.Error().Err(err).Msg("Failed to schedule geocode run")
		}
	})
	p.SetContinuation(func() {
		if err := sched.Schedule(GeocodeRequest(p, scheduler.Replace)); err != nil {
			logger.Error().Err(err).Msg("Failed to schedule geocode continuation")
		}
	})

	tpms := TpmsRequest(t, tpmsInterval, tpmsShort, tpmsShortInterval)
	if tpms.Kind == scheduler.OneShot {
		t.SetRearm(func() {
			if err := sched.Schedule(tpms); err != nil {
				logger.Error().Err(err).Msg("Failed to re-arm TPMS check")
			}
		})
	}

	sched.RegisterBoot(SyncRequest(o, syncInterval), tpms, GeocodeRequest(p, scheduler.KeepExisting))
}
