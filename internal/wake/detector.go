// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package wake detects an OS sleep/wake cycle by watching for a wall-clock
// jump a ticker's own interval cannot explain, and triggers a full process
// restart once things have had a moment to settle.
package wake

import (
	"context"
	"log/slog"
	"time"

	"github.com/rivershard/launcher/internal/selfupdate"
)

// tickInterval is how often the detector samples the wall clock.
const tickInterval = 1 * time.Second

// wakeThreshold is the minimum wall-clock delta between two ticks, in
// excess of tickInterval, that counts as "the OS was asleep" rather
// than ordinary scheduling jitter.
const wakeThreshold = 5 * time.Second

// Restarter abstracts the process-relaunch primitive so tests can
// observe a trigger without actually exiting the test binary.
type Restarter func() error

// Detector runs the sleep/wake poll loop until its context is cancelled.
type Detector struct {
	SettleTimeout time.Duration
	Restart       Restarter
	log           *slog.Logger

	// ticks and now are overridden in tests to drive the loop with a
	// synthetic clock instead of a real 1s ticker.
	ticks <-chan time.Time
	now   func() time.Time
}

// New returns a Detector with settleTimeout before a detected wake
// triggers a restart, and restart as the relaunch primitive (defaults
// to selfupdate.Restart when nil).
func New(settleTimeout time.Duration, restart Restarter, log *slog.Logger) *Detector {
	if restart == nil {
		restart = selfupdate.Restart
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{SettleTimeout: settleTimeout, Restart: restart, log: log, now: time.Now}
}

// isWake reports whether delta between two consecutive samples is large
// enough to infer the OS was asleep in between, rather than ordinary
// scheduling jitter around tickInterval.
func isWake(delta time.Duration) bool {
	return delta > tickInterval+wakeThreshold
}

// Run blocks, sampling the wall clock every tickInterval, until ctx is
// cancelled or a detected wake's settle timeout elapses and Restart is
// invoked (at which point Run returns whatever Restart returned).
func (d *Detector) Run(ctx context.Context) error {
	ticks := d.ticks
	if ticks == nil {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	now := d.now
	if now == nil {
		now = time.Now
	}

	last := now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sample := <-ticks:
			delta := sample.Sub(last)
			last = sample
			if isWake(delta) {
				d.log.Info("wake: suspend/resume detected", "delta", delta)
				if d.SettleTimeout > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(d.SettleTimeout):
					}
				}
				return d.Restart()
			}
		}
	}
}
