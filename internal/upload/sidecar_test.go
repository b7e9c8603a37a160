// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSidecarIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	st1, err := initSidecar(dir, 10)
	require.NoError(t, err)
	require.Equal(t, 10, st1.TotalFilesCount)

	require.NoError(t, mutateSidecar(dir, func(s *SyncState) { s.UploadedFilesCount = 4 }))

	st2, err := initSidecar(dir, 99)
	require.NoError(t, err)
	require.Equal(t, 10, st2.TotalFilesCount, "re-init must not overwrite existing state")
	require.Equal(t, 4, st2.UploadedFilesCount)
}

func TestMutateSidecarPersistsAcrossReads(t *testing.T) {
	dir := t.TempDir()
	_, err := initSidecar(dir, 5)
	require.NoError(t, err)

	require.NoError(t, mutateSidecar(dir, func(s *SyncState) {
		s.Commits["abc123"] = CommitLog{Files: []string{"game.7z.001"}, WasPushed: false}
	}))

	st, err := readSidecar(dir)
	require.NoError(t, err)
	require.Contains(t, st.Commits, "abc123")
	require.False(t, st.Commits["abc123"].WasPushed)

	require.NoError(t, mutateSidecar(dir, func(s *SyncState) {
		c := s.Commits["abc123"]
		c.WasPushed = true
		s.Commits["abc123"] = c
		s.UploadedFilesCount += len(c.Files)
	}))

	st2, err := readSidecar(dir)
	require.NoError(t, err)
	require.True(t, st2.Commits["abc123"].WasPushed)
	require.Equal(t, 1, st2.UploadedFilesCount)
}

func TestUploadedFilesCountNeverExceedsTotal(t *testing.T) {
	dir := t.TempDir()
	_, err := initSidecar(dir, 3)
	require.NoError(t, err)

	require.NoError(t, mutateSidecar(dir, func(s *SyncState) {
		s.UploadedFilesCount = 3
		s.State = ShardCompleted
	}))

	st, err := readSidecar(dir)
	require.NoError(t, err)
	require.LessOrEqual(t, st.UploadedFilesCount, st.TotalFilesCount)
	require.Equal(t, ShardCompleted, st.State)
}
