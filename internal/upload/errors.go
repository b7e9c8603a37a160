// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package upload implements the shard-packing, commit, and push pipeline
// that publishes a staged release directory to a release's shard repos.
package upload

import (
	"errors"
	"fmt"
)

// ErrNothingToUpload is returned by Start when staging_dir contains no
// files matching "game.7z*".
var ErrNothingToUpload = errors.New("upload: staging directory has no game.7z* files")

// ErrNoUploadInProgress is returned by Continue when config carries no
// persisted VersionProgressUpload to resume.
var ErrNoUploadInProgress = errors.New("upload: no upload in progress")

// FsLockError wraps a failure to acquire the sidecar's advisory file
// lock - surfaced rather than retried, since it means another process is
// touching the same staging directory.
type FsLockError struct {
	Path string
	Err  error
}

func (e *FsLockError) Error() string {
	return fmt.Sprintf("upload: lock %s: %v", e.Path, e.Err)
}
func (e *FsLockError) Unwrap() error { return e.Err }

// GitPushFailedError reports bounded push-retry exhaustion. The commit
// that failed remains was_pushed=false in the sidecar, so the next
// Continue() resumes at exactly that commit.
type GitPushFailedError struct {
	Repo     string
	ExitCode int
	Attempts int
}

func (e *GitPushFailedError) Error() string {
	return fmt.Sprintf("upload: git push failed for %s after %d attempts (exit %d)", e.Repo, e.Attempts, e.ExitCode)
}
