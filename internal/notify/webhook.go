// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matesync/internal/models"
)

const maxErrorBodySize = 4 * 1024

// WebhookSink POSTs notifications as JSON to a generic endpoint.
type WebhookSink struct {
	url    string
	client *http.Client

	mu        sync.Mutex
	lastSent  time.Time
	rateLimit time.Duration
}

// WebhookPayload is the JSON body sent to the endpoint.
type WebhookPayload struct {
	Notification models.Notification `json:"notification"`
	EventType    string              `json:"event_type"` // tpms_notification
	Timestamp    time.Time           `json:"timestamp"`
	Source       string              `json:"source"` // matesync
}

// NewWebhookSink creates a webhook sink. Deliveries are spaced by at least
// 500ms.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		rateLimit: 500 * time.Millisecond,
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Notify implements Sink.
func (s *WebhookSink) Notify(ctx context.Context, n models.Notification) error {
	payload := WebhookPayload{
		Notification: n,
		EventType:    "tpms_notification",
		Timestamp:    time.Now(),
		Source:       "matesync",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, body, &s.mu, &s.lastSent, s.rateLimit)
}

// postJSON waits out the sink's spacing, then POSTs body.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte,
	mu *sync.Mutex, lastSent *time.Time, spacing time.Duration) error {
	mu.Lock()
	defer mu.Unlock()

	if wait := spacing - time.Since(*lastSent); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "MateSync")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	*lastSent = time.Now()

	if resp.StatusCode >= 400 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(excerpt))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
