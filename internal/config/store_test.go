// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.FirstRun)
	require.NotEmpty(t, cfg.ClientUUID)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "Load must write defaults to disk on first run")
}

func TestLoadShallowMergesNewFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	old := map[string]any{
		"schema_version": 1,
		"client_uuid":    "keep-me",
		"first_run":      false,
		// run_params and tokens intentionally absent, as an older
		// schema version would have omitted them.
	}
	b, err := json.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "keep-me", cfg.ClientUUID)
	require.False(t, cfg.FirstRun)
	require.NotNil(t, cfg.Tokens)
	require.NotNil(t, cfg.Versions)
	require.Equal(t, RunParams{}, cfg.RunParams)
}

func TestLoadUndecodablePreservesClientUUID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	// Valid JSON, but client_uuid sits beside a field whose type makes
	// the document undecodable into AppConfig (versions must be an
	// object, not a string).
	garbage := `{"client_uuid":"salvage-me","versions":"not-an-object"}`
	require.NoError(t, os.WriteFile(path, []byte(garbage), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "salvage-me", cfg.ClientUUID)
	require.False(t, cfg.FirstRun)

	// Rewritten file must now be parseable as the current schema.
	cfg2, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "salvage-me", cfg2.ClientUUID)
}

func TestStoreMutateIsAtomicAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	st, err := Open(path)
	require.NoError(t, err)

	err = st.Mutate(func(cfg *AppConfig) error {
		cfg.CurrentProvider = "flat"
		return nil
	})
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "flat", reloaded.CurrentProvider)
}

func TestVersionProgressNormalizeInvariant(t *testing.T) {
	vp := &VersionProgress{
		Files: []*FileProgress{
			{Name: "a", IsDownloaded: true},
			{Name: "b", IsDownloaded: false},
			{Name: "c", IsDownloaded: true},
		},
	}
	vp.Normalize()
	require.Equal(t, 2, vp.DownloadedFilesCnt)
	require.Equal(t, 3, vp.TotalFileCount)
}
