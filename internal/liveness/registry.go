// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package liveness

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/syncthing/rendezvous/internal/directory"
)

// A Match tells a subscriber that Peer offers File.
type Match struct {
	File string
	Peer string
}

// DeliverFunc receives the matches one announcement produced for a
// subscription, in wanted order. It is called synchronously from the
// announcing operation and must not block or call back into the
// directory's Announce.
type DeliverFunc func([]Match)

// Source is where a registry takes the current state from when a
// subscription is created. *directory.Directory implements it.
type Source interface {
	Observe(fn func(recs []directory.Record))
}

// Registry is the push model strategy. Records stay until they are
// explicitly removed, and every announcement is fanned out to the
// subscriptions interested in it.
type Registry struct {
	subs *xsync.MapOf[uuid.UUID, *Subscription]
}

var _ directory.Liveness = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		subs: xsync.NewMapOf[uuid.UUID, *Subscription](),
	}
}

func (*Registry) Alive(directory.Record, time.Time) bool {
	return true
}

// Announced delivers rec to every subscription wanting any of its files,
// once per wanted file.
func (r *Registry) Announced(rec directory.Record) {
	r.subs.Range(func(_ uuid.UUID, s *Subscription) bool {
		s.notify(rec)
		return true
	})
}

// Subscribe registers interest in the given content identifiers and returns
// the matches already present in src. Every later announcement from src
// offering a wanted identifier is passed to deliver, so each match is seen
// exactly once across the returned slice and the deliveries. The returned
// subscription must be closed when the subscriber goes away.
func (r *Registry) Subscribe(src Source, files []string, deliver DeliverFunc) (*Subscription, []Match, error) {
	if err := directory.ValidateQuery(files); err != nil {
		return nil, nil, err
	}

	wanted := make([]string, 0, len(files))
	for _, f := range files {
		if !slices.Contains(wanted, f) {
			wanted = append(wanted, f)
		}
	}

	s := &Subscription{
		id:      uuid.New(),
		wanted:  wanted,
		deliver: deliver,
		reg:     r,
	}

	var current []Match
	src.Observe(func(recs []directory.Record) {
		r.subs.Store(s.id, s)
		subscriptionsActive.Inc()
		for _, f := range s.wanted {
			for _, rec := range recs {
				if rec.Offers(f) {
					current = append(current, Match{File: f, Peer: rec.Identity})
				}
			}
		}
	})
	notificationsTotal.Add(float64(len(current)))

	slog.Debug("Subscription registered", slog.String("id", s.id.String()), slog.Int("files", len(wanted)), slog.Int("matches", len(current)))
	return s, current, nil
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	return r.subs.Size()
}

type Subscription struct {
	id      uuid.UUID
	wanted  []string
	deliver DeliverFunc
	reg     *Registry
	closed  atomic.Bool
}

func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Wanted returns the content identifiers the subscription is interested
// in.
func (s *Subscription) Wanted() []string {
	return slices.Clone(s.wanted)
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.reg.subs.Delete(s.id)
	subscriptionsActive.Dec()
	slog.Debug("Subscription closed", slog.String("id", s.id.String()))
}

func (s *Subscription) notify(rec directory.Record) {
	if s.closed.Load() {
		return
	}
	files := directory.Matches(rec, s.wanted)
	if len(files) == 0 {
		return
	}
	matches := make([]Match, len(files))
	for i, f := range files {
		matches[i] = Match{File: f, Peer: rec.Identity}
	}
	notificationsTotal.Add(float64(len(matches)))
	s.deliver(matches)
}
