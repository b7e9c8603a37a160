// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package download implements the resumable, parallel release-fetch
// engine: planning, a bounded worker pool over byte-range HTTP resume,
// and a single-consumer unpack stage feeding off the same pipeline.
package download

import "errors"

// ErrUserCancelled is returned by a worker that stopped because the
// version's cancellation func was invoked. Never logged as an error:
// the download is paused, not failed.
var ErrUserCancelled = errors.New("download: cancelled by user")

// ErrVersionNotFound is returned by Start when opts.VersionName is not
// present in config.
var ErrVersionNotFound = errors.New("download: version not found")

// ErrAlreadyRunning is returned by Start/Resume when the version already
// has an in-flight cancellation registered.
var ErrAlreadyRunning = errors.New("download: version already running")
