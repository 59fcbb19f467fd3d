// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package directory implements the peer directory: the table mapping peer
// identities to their bound address and announced content, the identity
// guard protecting it, and the matcher answering who offers what.
package directory

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/syncthing/rendezvous/internal/slogutil"
)

// Service is the set of operations a transport performs against the
// directory.
type Service interface {
	Announce(ann Announcement) error
	FindPeers(files []string) (map[string][]string, error)
	Keepalive(identity string, addr netip.Addr) error
	Withdraw(identity string, addr netip.Addr) error
}

// Liveness is the strategy deciding which records are alive and what
// happens after a peer announces.
type Liveness interface {
	// Alive returns true if rec should still be listed at the given time.
	Alive(rec Record, now time.Time) bool
	// Announced is called after every successful announcement, once the
	// directory state reflects it and before Announce returns. It must not
	// call Announce.
	Announced(rec Record)
}

// Clock supplies the time used for Seen and liveness checks, so tests can
// wind it forward.
type Clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time {
	return time.Now()
}

// Directory is the authoritative in-memory table of known peers. All
// operations are serialized by a single lock. A second lock orders
// announcement fan-out against Observe, so that an observer sees every
// announcement either in its snapshot or through Liveness.Announced, never
// both and never neither.
type Directory struct {
	live  Liveness
	clock Clock

	pubMut sync.Mutex
	mut    sync.Mutex
	peers  map[string]*Record
}

var _ Service = (*Directory)(nil)

// New returns an empty directory using the given liveness strategy. A nil
// clock means the system clock.
func New(live Liveness, clock Clock) *Directory {
	if clock == nil {
		clock = defaultClock{}
	}
	return &Directory{
		live:  live,
		clock: clock,
		peers: make(map[string]*Record),
	}
}

// Announce creates or replaces the record for ann.Identity. The announced
// file list replaces whatever was announced before.
func (d *Directory) Announce(ann Announcement) (err error) {
	defer observeOp(opAnnounce, time.Now(), &err)

	if err := ann.validate(); err != nil {
		return err
	}

	d.pubMut.Lock()
	defer d.pubMut.Unlock()

	d.mut.Lock()
	now := d.clock.Now()
	existing := d.liveRecord(ann.Identity, now)
	if err := Guard(existing, ann.Address); err != nil {
		d.mut.Unlock()
		slog.Debug("Rejected announcement", slogutil.Identity(ann.Identity), slogutil.Address(ann.Address), slogutil.Error(err))
		return err
	}
	rec := &Record{
		Identity: ann.Identity,
		Address:  normalizeAddr(ann.Address),
		Files:    slices.Clone(ann.Files),
		Seen:     now,
		Handle:   ann.Handle,
	}
	d.peers[ann.Identity] = rec
	announced := rec.clone()
	d.updateGauge()
	d.mut.Unlock()

	slog.Debug("Peer announced", slogutil.Identity(announced.Identity), slogutil.Address(announced.Address), slog.Int("files", len(announced.Files)), slog.Bool("new", existing == nil))
	d.live.Announced(announced)
	return nil
}

// Keepalive marks the record for identity as seen now.
func (d *Directory) Keepalive(identity string, addr netip.Addr) (err error) {
	defer observeOp(opKeepalive, time.Now(), &err)

	if identity == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidInput)
	}

	d.mut.Lock()
	defer d.mut.Unlock()

	now := d.clock.Now()
	rec := d.liveRecord(identity, now)
	if rec == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, identity)
	}
	if err := Guard(rec, addr); err != nil {
		return err
	}
	rec.Seen = now
	return nil
}

// Withdraw removes the record for identity.
func (d *Directory) Withdraw(identity string, addr netip.Addr) (err error) {
	defer observeOp(opWithdraw, time.Now(), &err)

	if identity == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidInput)
	}

	d.mut.Lock()
	defer d.mut.Unlock()

	rec := d.liveRecord(identity, d.clock.Now())
	if rec == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, identity)
	}
	if err := Guard(rec, addr); err != nil {
		return err
	}
	delete(d.peers, identity)
	d.updateGauge()
	slog.Debug("Peer withdrew", slogutil.Identity(identity), slogutil.Address(rec.Address))
	return nil
}

// Release removes the record for identity if it is still owned by the
// connection named by handle, returning true if a record was removed. It is
// used when a connection goes away and has no failure modes worth
// reporting.
func (d *Directory) Release(identity, handle string) bool {
	if identity == "" || handle == "" {
		return false
	}

	d.mut.Lock()
	defer d.mut.Unlock()

	rec, ok := d.peers[identity]
	if !ok || rec.Handle != handle {
		return false
	}
	delete(d.peers, identity)
	d.updateGauge()
	peerOperations.WithLabelValues(opRelease, resSuccess).Inc()
	slog.Debug("Peer released", slogutil.Identity(identity), slog.String("handle", handle))
	return true
}

// Snapshot returns copies of all live records, sorted by identity.
func (d *Directory) Snapshot() []Record {
	d.mut.Lock()
	defer d.mut.Unlock()
	return d.snapshotLocked()
}

func (d *Directory) snapshotLocked() []Record {
	now := d.clock.Now()
	recs := make([]Record, 0, len(d.peers))
	for _, rec := range d.peers {
		if d.live.Alive(*rec, now) {
			recs = append(recs, rec.clone())
		}
	}
	slices.SortFunc(recs, func(a, b Record) int {
		return cmp.Compare(a.Identity, b.Identity)
	})
	return recs
}

// FindPeers returns the identities of the live peers offering each of the
// given content identifiers.
func (d *Directory) FindPeers(files []string) (res map[string][]string, err error) {
	defer observeOp(opFind, time.Now(), &err)

	if err := ValidateQuery(files); err != nil {
		return nil, err
	}
	return Match(d.Snapshot(), files), nil
}

// Observe calls fn with a snapshot of the live records. No announcement is
// published while fn runs, so fn may register interest in future
// announcements without missing or duplicating any. fn must not call
// Announce.
func (d *Directory) Observe(fn func(recs []Record)) {
	d.pubMut.Lock()
	defer d.pubMut.Unlock()
	fn(d.Snapshot())
}

// Sweep deletes every record the liveness strategy no longer considers
// alive and returns how many were deleted.
func (d *Directory) Sweep() int {
	t0 := time.Now()

	d.mut.Lock()
	defer d.mut.Unlock()

	now := d.clock.Now()
	deleted := 0
	for id, rec := range d.peers {
		if !d.live.Alive(*rec, now) {
			delete(d.peers, id)
			deleted++
		}
	}
	d.updateGauge()

	peerOperations.WithLabelValues(opSweep, resSuccess).Inc()
	peerOperationSeconds.WithLabelValues(opSweep).Observe(time.Since(t0).Seconds())
	if deleted > 0 {
		slog.Debug("Swept expired peers", slog.Int("deleted", deleted), slog.Int("remaining", len(d.peers)))
	}
	return deleted
}

// Len returns the number of stored records, including any that have
// expired but not yet been swept.
func (d *Directory) Len() int {
	d.mut.Lock()
	defer d.mut.Unlock()
	return len(d.peers)
}

// liveRecord returns the record for identity, or nil if there is none or
// it is no longer alive. Dead records are removed. Must be called with mut
// held.
func (d *Directory) liveRecord(identity string, now time.Time) *Record {
	rec, ok := d.peers[identity]
	if !ok {
		return nil
	}
	if !d.live.Alive(*rec, now) {
		delete(d.peers, identity)
		d.updateGauge()
		return nil
	}
	return rec
}

func (d *Directory) updateGauge() {
	peersKnown.Set(float64(len(d.peers)))
}

func observeOp(op string, t0 time.Time, err *error) {
	peerOperations.WithLabelValues(op, resultLabel(*err)).Inc()
	peerOperationSeconds.WithLabelValues(op).Observe(time.Since(t0).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resSuccess
	case errors.Is(err, ErrInvalidInput):
		return resInvalidInput
	case errors.Is(err, ErrIdentityLocked):
		return resIdentityLocked
	case errors.Is(err, ErrNotFound):
		return resNotFound
	default:
		return resError
	}
}
