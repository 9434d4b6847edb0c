// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package services

import (
	"context"
	"fmt"
)

// JobScheduler is satisfied by *scheduler.Scheduler.
type JobScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService starts the job scheduler and stops it when the context
// ends. The job table survives a restart, so pending work is armed again
// when suture restarts the service.
type SchedulerService struct {
	scheduler JobScheduler
	name      string
}

// NewSchedulerService wraps s.
func NewSchedulerService(s JobScheduler) *SchedulerService {
	return &SchedulerService{scheduler: s, name: "job-scheduler"}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	<-ctx.Done()
	if err := s.scheduler.Stop(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string {
	return s.name
}
