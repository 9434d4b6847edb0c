// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package teslamate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
)

// ErrCircuitOpen is returned while the breaker rejects calls. Callers treat
// it as a network condition and retry later.
var ErrCircuitOpen = errors.New("teslamate circuit breaker open")

// BreakerSettings tunes the breaker. Zero values take the defaults.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Minute
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRate == 0 {
		s.FailureRate = 0.6
	}
	return s
}

// CircuitBreakerClient wraps Client with a circuit breaker.
//
// Only transport failures and 5xx responses count against the breaker.
// ErrNotConfigured and 4xx responses pass through without tripping it.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewCircuitBreakerClient wraps client.
func NewCircuitBreakerClient(client *Client, settings BreakerSettings) *CircuitBreakerClient {
	s := settings.withDefaults()
	name := "teslamate-api"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRate {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
		IsSuccessful: isBreakerSuccess,
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: name}
}

// State returns the current breaker state as a string.
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < http.StatusInternalServerError
	}
	return false
}

func (cbc *CircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// castResult type-asserts a breaker result
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies connectivity with circuit breaker protection
func (cbc *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.client.Ping(ctx)
	})
	return err
}

// ListVehicles lists cars with circuit breaker protection
func (cbc *CircuitBreakerClient) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return castResult[[]models.Vehicle](cbc.execute(func() (any, error) {
		return cbc.client.ListVehicles(ctx)
	}))
}

// GetStatus fetches car status with circuit breaker protection
func (cbc *CircuitBreakerClient) GetStatus(ctx context.Context, carID int) (*models.VehicleStatus, error) {
	return castResult[*models.VehicleStatus](cbc.execute(func() (any, error) {
		return cbc.client.GetStatus(ctx, carID)
	}))
}

// GetDrives lists drives with circuit breaker protection
func (cbc *CircuitBreakerClient) GetDrives(ctx context.Context, carID int, from, to time.Time) ([]models.Drive, error) {
	return castResult[[]models.Drive](cbc.execute(func() (any, error) {
		return cbc.client.GetDrives(ctx, carID, from, to)
	}))
}

// GetCharges lists charges with circuit breaker protection
func (cbc *CircuitBreakerClient) GetCharges(ctx context.Context, carID int, from, to time.Time) ([]models.Charge, error) {
	return castResult[[]models.Charge](cbc.execute(func() (any, error) {
		return cbc.client.GetCharges(ctx, carID, from, to)
	}))
}

// GetDriveDetail fetches a drive detail with circuit breaker protection
func (cbc *CircuitBreakerClient) GetDriveDetail(ctx context.Context, carID, driveID int) (*models.DriveDetail, error) {
	return castResult[*models.DriveDetail](cbc.execute(func() (any, error) {
		return cbc.client.GetDriveDetail(ctx, carID, driveID)
	}))
}

// GetChargeDetail fetches a charge detail with circuit breaker protection
func (cbc *CircuitBreakerClient) GetChargeDetail(ctx context.Context, carID, chargeID int) (*models.ChargeDetail, error) {
	return castResult[*models.ChargeDetail](cbc.execute(func() (any, error) {
		return cbc.client.GetChargeDetail(ctx, carID, chargeID)
	}))
}

var (
	_ API = (*Client)(nil)
	_ API = (*CircuitBreakerClient)(nil)
)
