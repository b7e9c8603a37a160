// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package applog_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/applog"
)

func TestNewDefaultsToStderr(t *testing.T) {
	log := applog.New(nil, slog.LevelInfo)
	require.NotNil(t, log)
}

func TestRecoverAndLogCatchesPanic(t *testing.T) {
	log := applog.New(os.Stderr, slog.LevelError)
	var recovered any

	func() {
		defer applog.RecoverAndLog(context.Background(), log, "test-op", func(r any) {
			recovered = r
		})
		panic("boom")
	}()

	require.Equal(t, "boom", recovered)
}

func TestRecoverAndLogNoOpWithoutPanic(t *testing.T) {
	log := applog.New(os.Stderr, slog.LevelError)
	called := false

	func() {
		defer applog.RecoverAndLog(context.Background(), log, "test-op", func(r any) {
			called = true
		})
	}()

	require.False(t, called)
}
