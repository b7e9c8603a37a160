// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package applog wraps log/slog with the launcher's conventions: a
// single process-wide logger, and a recovery helper for background
// goroutines so a panic becomes a logged error instead of a crashed
// process - except where the spec explicitly wants a crash (the
// self-updater's final byte-write step on disk-full).
package applog

import (
	"context"
	"log/slog"
	"os"
)

// New returns a JSON-structured logger at level, writing to w (stderr
// if w is nil). JSON output matches the teacher's convention of
// machine-parseable log lines once piped through its log file flag.
func New(w *os.File, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// RecoverAndLog recovers a panic in the current goroutine, logs it via
// log at error level tagged with op, and invokes onPanic (typically an
// event publish + engine-state transition to a failed state) if the
// goroutine panicked. Call via defer at the top of any background
// goroutine that must not bring down the process.
func RecoverAndLog(ctx context.Context, log *slog.Logger, op string, onPanic func(recovered any)) {
	if r := recover(); r != nil {
		log.ErrorContext(ctx, "recovered panic", "op", op, "panic", r)
		if onPanic != nil {
			onPanic(r)
		}
	}
}
