// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package liveness holds the two strategies deciding how long peers stay
// listed and how new matches reach the peers looking for them: expiry with
// periodic sweeping for request/response transports, and a subscription
// registry for transports with persistent connections.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syncthing/rendezvous/internal/directory"
)

const (
	DefaultWindow        = 60 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// Expiry is the pull model strategy. A record is alive for window after it
// was last announced or kept alive; there are no notifications.
type Expiry struct {
	window time.Duration
}

var _ directory.Liveness = (*Expiry)(nil)

func NewExpiry(window time.Duration) *Expiry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Expiry{window: window}
}

func (e *Expiry) Alive(rec directory.Record, now time.Time) bool {
	return now.Sub(rec.Seen) <= e.window
}

func (*Expiry) Announced(directory.Record) {}

func (e *Expiry) Window() time.Duration {
	return e.window
}

type sweepable interface {
	Sweep() int
}

// A Sweeper periodically removes expired records. It is a suture.Service.
type Sweeper struct {
	dir  sweepable
	intv time.Duration
}

func NewSweeper(dir sweepable, intv time.Duration) *Sweeper {
	if intv <= 0 {
		intv = DefaultSweepInterval
	}
	return &Sweeper{
		dir:  dir,
		intv: intv,
	}
}

func (s *Sweeper) Serve(ctx context.Context) error {
	t := time.NewTimer(s.intv)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if n := s.dir.Sweep(); n > 0 {
				peersExpired.Add(float64(n))
				slog.Debug("Expired peers removed", slog.Int("count", n))
			}
			t.Reset(s.intv)

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Sweeper) String() string {
	return fmt.Sprintf("liveness.Sweeper@%p", s)
}
