// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSchema is returned (wrapped) when config.json cannot be decoded into
// the current schema at all - the caller falls back to defaults while
// preserving client_uuid, per the on-disk format contract.
var ErrSchema = errors.New("config: on-disk schema unreadable")

// Store owns config.json: load-or-create, shallow-merge-on-new-fields,
// and serialize-then-atomic-write on every mutation. The mutex bounds
// every writer's critical section to one marshal plus one full-file
// write; callers must never hold a Store lock across network I/O.
type Store struct {
	path string
	mu   sync.Mutex
	cfg  *AppConfig
}

// Open loads path, creating it with defaults if absent, and returns a
// Store wrapping the result. See Load for the exact fallback rules.
func Open(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Load implements the three on-disk rules from the external-interfaces
// contract:
//  1. missing/unreadable -> write defaults, first_run=true.
//  2. present, parses into the current schema, but missing newer
//     top-level keys (including nested run_params) -> shallow-merge
//     defaults for those keys only.
//  3. present but undecodable as the current schema at all -> preserve
//     client_uuid (generating one if absent), rewrite with defaults,
//     first_run=false.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Defaults()
		cfg.ClientUUID = uuid.NewString()
		cfg.LastUpdatedAt = time.Now().UTC()
		if err := atomicWrite(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		cfg := Defaults()
		cfg.ClientUUID = uuid.NewString()
		cfg.LastUpdatedAt = time.Now().UTC()
		_ = atomicWrite(path, cfg)
		return cfg, nil
	}

	var cfg AppConfig
	if jsonErr := json.Unmarshal(raw, &cfg); jsonErr != nil {
		// Completely undecodable: preserve client_uuid if we can dig it
		// out of the raw bytes, otherwise mint a new one.
		id := salvageClientUUID(raw)
		if id == "" {
			id = uuid.NewString()
		}
		fresh := Defaults()
		fresh.ClientUUID = id
		fresh.FirstRun = false
		fresh.LastUpdatedAt = time.Now().UTC()
		if err := atomicWrite(path, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	mergeDefaults(&cfg, raw)
	if cfg.ClientUUID == "" {
		cfg.ClientUUID = uuid.NewString()
	}
	return &cfg, nil
}

// mergeDefaults shallow-merges zero-valued top-level containers
// (including the nested run_params struct) against Defaults(), so a
// config.json written by an older schema version gains new fields
// without losing anything the user already had.
func mergeDefaults(cfg *AppConfig, raw []byte) {
	var present map[string]json.RawMessage
	_ = json.Unmarshal(raw, &present)

	def := Defaults()
	if cfg.Tokens == nil {
		cfg.Tokens = def.Tokens
	}
	if cfg.Versions == nil {
		cfg.Versions = def.Versions
	}
	if cfg.Progress == nil {
		cfg.Progress = def.Progress
	}
	if _, ok := present["run_params"]; !ok {
		cfg.RunParams = def.RunParams
	}
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = def.SchemaVersion
	}
}

// salvageClientUUID best-effort extracts a "client_uuid" string field
// from otherwise-undecodable JSON bytes, so a schema break never orphans
// an install's identity.
func salvageClientUUID(raw []byte) string {
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return ""
	}
	if v, ok := loose["client_uuid"].(string); ok {
		return v
	}
	return ""
}

// atomicWrite serializes cfg as pretty JSON and writes it via a temp
// file + rename so readers never observe a partial file.
func atomicWrite(path string, cfg *AppConfig) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Snapshot returns a deep-enough copy of the current config for reading.
// Callers must not mutate nested maps/slices concurrently; use Mutate for
// changes instead.
func (s *Store) Snapshot() AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

// Mutate runs fn with exclusive access to the config and persists the
// result. fn must not perform network I/O or block on anything besides
// local, fast, in-memory work - the mutex is held for the duration.
func (s *Store) Mutate(fn func(cfg *AppConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.cfg); err != nil {
		return err
	}
	s.cfg.LastUpdatedAt = time.Now().UTC()
	return atomicWrite(s.path, s.cfg)
}
