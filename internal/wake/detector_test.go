// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package wake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsWakeThreshold(t *testing.T) {
	require.False(t, isWake(tickInterval))
	require.False(t, isWake(tickInterval+wakeThreshold))
	require.True(t, isWake(tickInterval+wakeThreshold+time.Millisecond))
}

func TestRunTriggersRestartOnWakeJump(t *testing.T) {
	ticks := make(chan time.Time, 4)
	start := time.Unix(0, 0)
	ticks <- start.Add(1 * time.Second)
	ticks <- start.Add(2 * time.Second)
	ticks <- start.Add(30 * time.Second) // a 28s jump: clearly a wake

	restarted := make(chan struct{}, 1)
	d := New(0, func() error { restarted <- struct{}{}; return nil }, nil)
	d.ticks = ticks
	d.now = func() time.Time { return start }

	err := d.Run(context.Background())
	require.NoError(t, err)
	select {
	case <-restarted:
	default:
		t.Fatal("expected Restart to be invoked")
	}
}

func TestRunExitsCleanlyOnContextCancel(t *testing.T) {
	ticks := make(chan time.Time)
	d := New(0, func() error { t.Fatal("Restart should not be called"); return nil }, nil)
	d.ticks = ticks
	d.now = func() time.Time { return time.Unix(0, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx)
	require.NoError(t, err)
}

func TestRunWaitsOutSettleTimeoutBeforeRestarting(t *testing.T) {
	ticks := make(chan time.Time, 2)
	start := time.Unix(0, 0)
	ticks <- start.Add(1 * time.Second)
	ticks <- start.Add(30 * time.Second)

	restarted := make(chan time.Time, 1)
	d := New(20*time.Millisecond, func() error { restarted <- time.Now(); return nil }, nil)
	d.ticks = ticks
	d.now = func() time.Time { return start }

	before := time.Now()
	err := d.Run(context.Background())
	require.NoError(t, err)

	select {
	case at := <-restarted:
		require.GreaterOrEqual(t, at.Sub(before), 20*time.Millisecond)
	default:
		t.Fatal("expected Restart to be invoked")
	}
}
