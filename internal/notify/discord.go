// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matesync/internal/models"
)

// DiscordSink posts notifications as Discord embeds.
type DiscordSink struct {
	url    string
	client *http.Client

	mu        sync.Mutex
	lastSent  time.Time
	rateLimit time.Duration
}

// NewDiscordSink creates a Discord sink. Discord limits webhooks per channel,
// so deliveries are spaced by at least one second.
func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		url:       webhookURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		rateLimit: time.Second,
	}
}

// Name implements Sink.
func (s *DiscordSink) Name() string { return "discord" }

// Notify implements Sink.
func (s *DiscordSink) Notify(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{buildEmbed(n)}})
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, body, &s.mu, &s.lastSent, s.rateLimit)
}

func buildEmbed(n models.Notification) discordEmbed {
	color := 0x2ECC71 // Green
	if n.Kind == string(models.TpmsWarningStarted) {
		color = 0xFFA500 // Orange
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return discordEmbed{
		Title:       n.Title,
		Description: n.Body,
		Color:       color,
		Timestamp:   created.UTC().Format(time.RFC3339),
		Fields: []discordEmbedField{
			{Name: "Vehicle", Value: strconv.Itoa(n.VehicleID), Inline: true},
		},
		Footer: discordEmbedFooter{Text: "MateSync"},
	}
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}
