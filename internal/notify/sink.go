// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package notify delivers user-facing notifications.
//
// A Sink posts one titled message. Notifications carry a stable per-vehicle
// ID so a sink that supports replacement (a push channel, a chat thread)
// shows only the newest message for that vehicle.
//
// Available sinks:
//   - LogSink: always active, writes through zerolog
//   - WebhookSink: generic JSON POST
//   - DiscordSink: Discord webhook embed
//   - EventSink: publishes to a watermill topic (NATS in production)
//
// Multi fans a notification out to several sinks and joins their errors.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
)

// Sink delivers a notification.
type Sink interface {
	Notify(ctx context.Context, n models.Notification) error
	Name() string
}

// Multi delivers to every sink. One failing sink does not stop the others.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks. Nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Sinks returns the names of the combined sinks.
func (m *Multi) Sinks() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify implements Sink.
func (m *Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Notify(ctx, n)
		metrics.RecordNotification(s.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: logging.Component("notify")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, n models.Notification) error {
	s.logger.Info().
		Int("notification_id", n.ID).
		Int("vehicle_id", n.VehicleID).
		Str("kind", n.Kind).
		Str("title", n.Title).
		Msg(n.Body)
	return nil
}
