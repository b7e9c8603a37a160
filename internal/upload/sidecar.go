// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// sidecarFileName is the per-shard state file, kept out of the shard's
// commit history via its own .gitignore.
const sidecarFileName = ".git_sync_state"

// lockTimeout bounds how long a sidecar read or mutation waits to
// acquire its advisory lock before surfacing FsLockError.
const lockTimeout = 10 * time.Second

// lockPollInterval is how often TryLockContext/TryRLockContext re-poll
// the lock while waiting for lockTimeout to elapse.
const lockPollInterval = 25 * time.Millisecond

// acquireCtx returns a fresh context bounded by lockTimeout, used for
// every sidecar lock attempt.
func acquireCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), lockTimeout)
}

// SyncState is RepoSyncState: one shard's commit/push journal, mutated
// exclusively and read shared, both cross-process via an advisory file
// lock on the sidecar itself.
type SyncState struct {
	State             ShardState           `json:"state"`
	TotalFilesCount   int                  `json:"total_files_count"`
	UploadedFilesCount int                 `json:"uploaded_files_count"`
	Commits           map[string]CommitLog `json:"commits"`
}

// ShardState is a shard's lifecycle stage.
type ShardState string

const (
	ShardInProgress ShardState = "InProgress"
	ShardCompleted  ShardState = "Completed"
)

// CommitLog records one commit's pushed files and push status.
type CommitLog struct {
	Files    []string `json:"files"`
	WasPushed bool    `json:"was_pushed"`
}

// initSidecar creates sidecarPath with totalFilesCount if it does not
// already exist. Re-init is idempotent: if the file exists, its current
// state is left untouched and returned.
func initSidecar(shardDir string, totalFilesCount int) (*SyncState, error) {
	path := filepath.Join(shardDir, sidecarFileName)
	lk := flock.New(path)
	ctx, cancel := acquireCtx()
	defer cancel()
	locked, err := lk.TryLockContext(ctx, lockPollInterval)
	if err != nil || !locked {
		return nil, &FsLockError{Path: path, Err: firstNonNil(err, errors.New("lock timeout"))}
	}
	defer lk.Unlock()

	if st, err := readSidecarLocked(path); err == nil {
		return st, nil
	}

	st := &SyncState{
		State:           ShardInProgress,
		TotalFilesCount: totalFilesCount,
		Commits:         map[string]CommitLog{},
	}
	if err := writeSidecarLocked(path, st); err != nil {
		return nil, err
	}
	return st, nil
}

// readSidecar acquires a shared lock, reads, and decodes the sidecar at
// shardDir.
func readSidecar(shardDir string) (*SyncState, error) {
	path := filepath.Join(shardDir, sidecarFileName)
	lk := flock.New(path)
	ctx, cancel := acquireCtx()
	defer cancel()
	locked, err := lk.TryRLockContext(ctx, lockPollInterval)
	if err != nil || !locked {
		return nil, &FsLockError{Path: path, Err: firstNonNil(err, errors.New("lock timeout"))}
	}
	defer lk.Unlock()
	return readSidecarLocked(path)
}

// mutateSidecar acquires an exclusive lock, reads the current state (if
// any), lets fn mutate it, then writes-truncates, syncs, and releases.
func mutateSidecar(shardDir string, fn func(st *SyncState)) error {
	path := filepath.Join(shardDir, sidecarFileName)
	lk := flock.New(path)
	ctx, cancel := acquireCtx()
	defer cancel()
	locked, err := lk.TryLockContext(ctx, lockPollInterval)
	if err != nil || !locked {
		return &FsLockError{Path: path, Err: firstNonNil(err, errors.New("lock timeout"))}
	}
	defer lk.Unlock()

	st, err := readSidecarLocked(path)
	if err != nil {
		st = &SyncState{State: ShardInProgress, Commits: map[string]CommitLog{}}
	}
	fn(st)
	return writeSidecarLocked(path, st)
}

func readSidecarLocked(path string) (*SyncState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st SyncState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	if st.Commits == nil {
		st.Commits = map[string]CommitLog{}
	}
	return &st, nil
}

func writeSidecarLocked(path string, st *SyncState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

func firstNonNil(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
