// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package kvstore keeps small per-vehicle documents and settings flags in
// BadgerDB. Values are JSON encoded.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/models"
)

// Key prefixes
const (
	tpmsKeyPrefix    = "tpms:"
	settingKeyPrefix = "setting:"
)

// Well-known settings keys
const (
	SettingServerConfigured = "server_configured"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("kv store is closed")

// Store wraps a BadgerDB instance
type Store struct {
	db *badger.DB
}

// Open opens the store at path. An empty path or ":memory:" opens an
// in-memory store that is discarded on Close.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" || path == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create kv directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
		opts.NumCompactors = 2
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().Str("path", path).Bool("in_memory", opts.InMemory).Msg("KV store opened")
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// GetTpmsState returns the stored state for vehicleID. A vehicle never seen
// before yields an all-false state and found=false.
func (s *Store) GetTpmsState(vehicleID int) (state models.TpmsState, found bool, err error) {
	err = s.get(tpmsKey(vehicleID), &state)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.TpmsState{}, false, nil
	}
	if err != nil {
		return models.TpmsState{}, false, fmt.Errorf("get tpms state %d: %w", vehicleID, err)
	}
	return state, true, nil
}

// PutTpmsState overwrites the stored state for vehicleID.
func (s *Store) PutTpmsState(vehicleID int, state models.TpmsState) error {
	if err := s.put(tpmsKey(vehicleID), state); err != nil {
		return fmt.Errorf("put tpms state %d: %w", vehicleID, err)
	}
	return nil
}

// ListTpmsStates returns every stored state keyed by vehicle.
func (s *Store) ListTpmsStates() (map[int]models.TpmsState, error) {
	out := make(map[int]models.TpmsState)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(tpmsKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, err := strconv.Atoi(strings.TrimPrefix(string(item.Key()), tpmsKeyPrefix))
			if err != nil {
				continue
			}
			var state models.TpmsState
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			}); err != nil {
				return err
			}
			out[id] = state
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tpms states: %w", err)
	}
	return out, nil
}

// DeleteAllTpmsStates removes every stored TPMS state.
func (s *Store) DeleteAllTpmsStates() error {
	if err := s.db.DropPrefix([]byte(tpmsKeyPrefix)); err != nil {
		return fmt.Errorf("drop tpms states: %w", err)
	}
	return nil
}

// GetBool reads a boolean setting, returning def when it was never set.
func (s *Store) GetBool(key string, def bool) (bool, error) {
	var v bool
	err := s.get(settingKeyPrefix+key, &v)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

// SetBool writes a boolean setting.
func (s *Store) SetBool(key string, v bool) error {
	if err := s.put(settingKeyPrefix+key, v); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// RunGC reclaims value log space until badger reports nothing to rewrite.
func (s *Store) RunGC() error {
	if s.db.Opts().InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// GCInterval is how often the supervisor service calls RunGC.
const GCInterval = 30 * time.Minute

func (s *Store) get(key string, dst any) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
}

func (s *Store) put(key string, v any) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func tpmsKey(vehicleID int) string {
	return tpmsKeyPrefix + strconv.Itoa(vehicleID)
}
