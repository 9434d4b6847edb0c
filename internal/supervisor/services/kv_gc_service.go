// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/matesync/internal/logging"
)

// GarbageCollector is satisfied by *kvstore.Store.
type GarbageCollector interface {
	RunGC() error
}

// KVGCService runs value log garbage collection on a fixed interval.
// GC errors are logged and retried on the next tick.
type KVGCService struct {
	store    GarbageCollector
	interval time.Duration
	name     string
}

// NewKVGCService collects store every interval. A non-positive interval
// becomes 30 minutes.
func NewKVGCService(store GarbageCollector, interval time.Duration) *KVGCService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &KVGCService{store: store, interval: interval, name: "kv-gc"}
}

// Serve implements suture.Service.
func (k *KVGCService) Serve(ctx context.Context) error {
	logger := logging.Component("kv-gc")
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := k.store.RunGC(); err != nil {
				logger.Warn().Err(err).Msg("KV garbage collection failed")
				continue
			}
			logger.Debug().Dur("duration", time.Since(start)).Msg("KV garbage collection finished")
		}
	}
}

func (k *KVGCService) String() string {
	return k.name
}
