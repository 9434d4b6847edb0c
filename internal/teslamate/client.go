// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

/*
Package teslamate is the client for the TeslaMate API (v1).

Client Features:
  - Bearer token authentication
  - HTTP client with configurable timeout (30s default)
  - Automatic HTTP 429 handling with exponential backoff and Retry-After
  - Responses unwrapped from the {"data": ...} envelope
  - Circuit breaker wrapper (circuit_breaker.go)

An empty base URL means no server has been configured yet; every call then
returns ErrNotConfigured so background jobs can finish quietly.
*/
package teslamate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/models"
)

// maxErrorBodySize caps how much of an error response is kept for reporting
const maxErrorBodySize = 64 * 1024

// ErrNotConfigured is returned by every call when no server URL is set.
var ErrNotConfigured = errors.New("teslamate server not configured")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %s", e.Path, e.StatusCode, e.Body)
}

// API is the subset of the TeslaMate API the sync engine uses. It is
// satisfied by Client and by CircuitBreakerClient.
type API interface {
	Ping(ctx context.Context) error
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	GetStatus(ctx context.Context, carID int) (*models.VehicleStatus, error)
	GetDrives(ctx context.Context, carID int, from, to time.Time) ([]models.Drive, error)
	GetCharges(ctx context.Context, carID int, from, to time.Time) ([]models.Charge, error)
	GetDriveDetail(ctx context.Context, carID, driveID int) (*models.DriveDetail, error)
	GetChargeDetail(ctx context.Context, carID, chargeID int) (*models.ChargeDetail, error)
}

// Client talks to one TeslaMate API server.
type Client struct {
	baseURL        string
	token          string
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a client from cfg. The base URL may be empty.
func NewClient(cfg *config.TeslamateConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		token:          cfg.Token,
		client:         &http.Client{Timeout: timeout},
		maxRetries:     3,
		retryBaseDelay: time.Second,
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// envelope is the {"data": ...} wrapper of every v1 response
type envelope[T any] struct {
	Data T `json:"data"`
}

// Ping checks that the server answers api/ping.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, "api/ping", nil)
	if err != nil {
		return fmt.Errorf("failed to ping TeslaMate: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	return nil
}

// ListVehicles returns every car known to the server.
func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var out envelope[[]models.Vehicle]
	if err := c.getJSON(ctx, "api/v1/cars", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetStatus returns the live status of a car, including tpms_details.
func (c *Client) GetStatus(ctx context.Context, carID int) (*models.VehicleStatus, error) {
	var out envelope[models.VehicleStatus]
	if err := c.getJSON(ctx, "api/v1/cars/"+strconv.Itoa(carID)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetDrives lists drives started within [from, to]. Zero bounds are omitted.
func (c *Client) GetDrives(ctx context.Context, carID int, from, to time.Time) ([]models.Drive, error) {
	var out envelope[[]models.Drive]
	if err := c.getJSON(ctx, "api/v1/cars/"+strconv.Itoa(carID)+"/drives", dateRange(from, to), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetCharges lists charges started within [from, to]. Zero bounds are omitted.
func (c *Client) GetCharges(ctx context.Context, carID int, from, to time.Time) ([]models.Charge, error) {
	var out envelope[[]models.Charge]
	if err := c.getJSON(ctx, "api/v1/cars/"+strconv.Itoa(carID)+"/charges", dateRange(from, to), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetDriveDetail returns a drive with its position samples.
func (c *Client) GetDriveDetail(ctx context.Context, carID, driveID int) (*models.DriveDetail, error) {
	var out envelope[models.DriveDetail]
	path := "api/v1/cars/" + strconv.Itoa(carID) + "/drives/" + strconv.Itoa(driveID)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetChargeDetail returns a charge with its charging_process samples.
func (c *Client) GetChargeDetail(ctx context.Context, carID, chargeID int) (*models.ChargeDetail, error) {
	var out envelope[models.ChargeDetail]
	path := "api/v1/cars/" + strconv.Itoa(carID) + "/charges/" + strconv.Itoa(chargeID)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func dateRange(from, to time.Time) url.Values {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("startDate", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		params.Set("endDate", to.UTC().Format(time.RFC3339))
	}
	return params
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, result any) error {
	resp, err := c.do(ctx, path, params)
	if err != nil {
		return fmt.Errorf("failed to make %s request: %w", path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// do performs a GET with 429 backoff (1s, 2s, 4s) honoring Retry-After.
// Non-2xx responses other than 429 are returned as *StatusError.
func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	reqURL := c.baseURL + "/" + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			if attempt == c.maxRetries {
				return nil, fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			}
			delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds >= 0 {
					delay = time.Duration(seconds) * time.Second
				}
			}
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body := readBodyForError(resp.Body)
			_ = resp.Body.Close()
			return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	}
}

// readBodyForError reads at most maxErrorBodySize bytes of an error body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
