// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// idleRoundDelay is the minimum pause after a round in which no grant
// could be sent
const idleRoundDelay = 250 * time.Millisecond

type granter interface {
	sendGrant(slave uint32) error
}

// Arbiter hands the half-duplex bus to each slave in turn. A slave keeps
// the bus until it acknowledges the grant, or until the release timeout
// expires when one is set.
type Arbiter struct {
	g        granter
	slaves   []uint32
	interval time.Duration
	timeout  time.Duration
	release  chan struct{}
	stats    *Statistics
	log      zerolog.Logger
}

func newArbiter(g granter, slaves []uint32, interval, timeout time.Duration, log zerolog.Logger, stats *Statistics) *Arbiter {
	return &Arbiter{
		g:        g,
		slaves:   slaves,
		interval: interval,
		timeout:  timeout,
		release:  make(chan struct{}, 1),
		stats:    stats,
		log:      log.With().Str("component", "arbiter").Logger(),
	}
}

// Release signals that the current slave has handed the bus back. It
// never blocks; a release with no grant outstanding is kept until the
// next grant clears it.
func (a *Arbiter) Release() {
	select {
	case a.release <- struct{}{}:
	default:
	}
}

// Run grants the bus round-robin until ctx is cancelled
func (a *Arbiter) Run(ctx context.Context) {
	a.log.Info().Int("slaves", len(a.slaves)).Msg("bus arbitration started")
	for {
		sent := 0
		for _, slave := range a.slaves {
			if ctx.Err() != nil {
				return
			}
			a.drain()
			if err := a.g.sendGrant(slave); err != nil {
				a.log.Warn().Err(err).Str("slave", fmt.Sprintf("%08X", slave)).Msg("grant failed")
				continue
			}
			sent++
			if !a.wait(ctx, slave) {
				return
			}
		}

		pause := a.interval
		if sent == 0 {
			// bus unavailable, e.g. while reconnecting
			pause = max(pause, idleRoundDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}

func (a *Arbiter) drain() {
	select {
	case <-a.release:
	default:
	}
}

// wait blocks until the slave releases the bus. It returns false when ctx
// is cancelled.
func (a *Arbiter) wait(ctx context.Context, slave uint32) bool {
	var timeout <-chan time.Time
	if a.timeout > 0 {
		t := time.NewTimer(a.timeout)
		defer t.Stop()
		timeout = t.C
	}

	start := time.Now()
	select {
	case <-ctx.Done():
		return false
	case <-a.release:
		a.stats.Release()
		a.log.Debug().
			Str("slave", fmt.Sprintf("%08X", slave)).
			Dur("held", time.Since(start)).
			Msg("bus released")
	case <-timeout:
		a.stats.ReleaseTimeout()
		a.log.Warn().
			Str("slave", fmt.Sprintf("%08X", slave)).
			Dur("timeout", a.timeout).
			Msg("slave did not release the bus")
	}
	return true
}
