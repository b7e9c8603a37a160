// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package manifest caches the bootstrap manifest fetched from a
// well-known "manifest.json" issue on a bootstrap repo.
package manifest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rivershard/launcher/internal/provider"
)

// Store is a process-wide, per-adapter cache of the bootstrap manifest.
type Store struct {
	mu    sync.Mutex
	cache map[string]provider.BootstrapManifest
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{cache: map[string]provider.BootstrapManifest{}}
}

// Load returns the bootstrap manifest for adapter, fetching and caching
// it on first need by searching bootstrapRepo for an issue titled
// "manifest.json" and JSON-decoding its body. Absence of the issue is
// provider.ErrManifestMissing, which is fatal at startup.
func (s *Store) Load(ctx context.Context, a provider.Adapter, bootstrapRepo string) (provider.BootstrapManifest, error) {
	s.mu.Lock()
	if m, ok := s.cache[a.ID()]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	issues, err := a.FindIssue(ctx, bootstrapRepo, provider.IssueParams{Title: "manifest.json"})
	if err != nil {
		return provider.BootstrapManifest{}, err
	}
	if len(issues) == 0 {
		return provider.BootstrapManifest{}, provider.ErrManifestMissing
	}

	var m provider.BootstrapManifest
	if err := json.Unmarshal([]byte(issues[0].Description), &m); err != nil {
		return provider.BootstrapManifest{}, &provider.DecodeError{URL: bootstrapRepo + "#manifest.json", Err: err}
	}

	s.mu.Lock()
	s.cache[a.ID()] = m
	s.mu.Unlock()
	return m, nil
}
