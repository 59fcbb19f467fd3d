// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package liveness

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syncthing/rendezvous/internal/directory"
)

var (
	addrA = netip.MustParseAddr("1.1.1.1")
	addrB = netip.MustParseAddr("2.2.2.2")
)

func TestExpiryAlive(t *testing.T) {
	e := NewExpiry(time.Minute)
	now := time.Now()

	cases := []struct {
		seen  time.Time
		alive bool
	}{
		{now, true},
		{now.Add(-59 * time.Second), true},
		{now.Add(-time.Minute), true},
		{now.Add(-61 * time.Second), false},
		{now.Add(-time.Hour), false},
	}
	for _, tc := range cases {
		if alive := e.Alive(directory.Record{Seen: tc.seen}, now); alive != tc.alive {
			t.Errorf("Alive(seen %v ago) => %v, expected %v", now.Sub(tc.seen), alive, tc.alive)
		}
	}

	if NewExpiry(0).Window() != DefaultWindow {
		t.Error("zero window should mean the default")
	}
}

func TestSweepRemovesSilentPeers(t *testing.T) {
	tc := &testClock{now: time.Now()}
	d := directory.New(NewExpiry(DefaultWindow), tc)

	if err := d.Announce(directory.Announcement{Identity: "alice", Address: addrA, Files: []string{"h1"}}); err != nil {
		t.Fatal(err)
	}
	if err := d.Announce(directory.Announcement{Identity: "bob", Address: addrB, Files: []string{"h1"}}); err != nil {
		t.Fatal(err)
	}

	// bob keeps alive more often than the window, alice goes silent.
	for i := 0; i < 4; i++ {
		tc.wind(20 * time.Second)
		if err := d.Keepalive("bob", addrB); err != nil {
			t.Fatal(err)
		}
	}

	if n := d.Sweep(); n != 1 {
		t.Errorf("sweep removed %d records, expected 1", n)
	}
	res, err := d.FindPeers([]string{"h1"})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(res["h1"]) != "[bob]" {
		t.Errorf("unexpected result %v", res)
	}
	if err := d.Withdraw("alice", addrA); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("expected swept peer to be gone, got %v", err)
	}
}

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

func TestSweeperServe(t *testing.T) {
	cs := &countingSweeper{}
	s := NewSweeper(cs, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Serve(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for cs.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not run")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type collector struct {
	mut     sync.Mutex
	matches []Match
	batches int
}

func (c *collector) deliver(ms []Match) {
	c.mut.Lock()
	c.matches = append(c.matches, ms...)
	c.batches++
	c.mut.Unlock()
}

func (c *collector) String() string {
	c.mut.Lock()
	defer c.mut.Unlock()
	return fmt.Sprint(c.matches)
}

func newPushDirectory() (*directory.Directory, *Registry) {
	reg := NewRegistry()
	return directory.New(reg, nil), reg
}

func TestSubscribeBeforeAnnounce(t *testing.T) {
	d, reg := newPushDirectory()

	var c collector
	sub, current, err := reg.Subscribe(d, []string{"X"}, c.deliver)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if len(current) != 0 {
		t.Fatalf("unexpected immediate matches %v", current)
	}

	if err := d.Announce(directory.Announcement{Identity: "alice", Address: addrA, Files: []string{"X", "Y"}}); err != nil {
		t.Fatal(err)
	}
	if c.String() != "[{X alice}]" {
		t.Errorf("unexpected matches %v", c.String())
	}

	// Content nobody asked for is not delivered.
	if err := d.Announce(directory.Announcement{Identity: "bob", Address: addrB, Files: []string{"Y"}}); err != nil {
		t.Fatal(err)
	}
	if c.String() != "[{X alice}]" {
		t.Errorf("unexpected matches %v", c.String())
	}
}

func TestSubscribeDeliversExisting(t *testing.T) {
	d, reg := newPushDirectory()

	if err := d.Announce(directory.Announcement{Identity: "alice", Address: addrA, Files: []string{"h1", "h2"}}); err != nil {
		t.Fatal(err)
	}
	if err := d.Announce(directory.Announcement{Identity: "bob", Address: addrB, Files: []string{"h2"}}); err != nil {
		t.Fatal(err)
	}

	var c collector
	sub, current, err := reg.Subscribe(d, []string{"h2", "h1", "h2"}, c.deliver)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if fmt.Sprint(current) != "[{h2 alice} {h2 bob} {h1 alice}]" {
		t.Errorf("unexpected matches %v", current)
	}
	if c.String() != "[]" {
		t.Errorf("existing matches went through deliver: %v", c.String())
	}
	if fmt.Sprint(sub.Wanted()) != "[h2 h1]" {
		t.Errorf("unexpected wanted list %v", sub.Wanted())
	}
}

func TestSubscriptionClose(t *testing.T) {
	d, reg := newPushDirectory()

	var c collector
	sub, _, err := reg.Subscribe(d, []string{"h1"}, c.deliver)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 1 {
		t.Errorf("expected one subscription, got %d", reg.Len())
	}

	sub.Close()
	sub.Close()
	if reg.Len() != 0 {
		t.Errorf("expected no subscriptions, got %d", reg.Len())
	}

	if err := d.Announce(directory.Announcement{Identity: "alice", Address: addrA, Files: []string{"h1"}}); err != nil {
		t.Fatal(err)
	}
	if c.String() != "[]" {
		t.Errorf("closed subscription received %v", c.String())
	}
}

func TestSubscribeEmpty(t *testing.T) {
	d, reg := newPushDirectory()

	if _, _, err := reg.Subscribe(d, nil, func([]Match) {}); !errors.Is(err, directory.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if reg.Len() != 0 {
		t.Error("invalid subscription registered")
	}
}

func TestFanOutToAllSubscribers(t *testing.T) {
	d, reg := newPushDirectory()

	var c1, c2, c3 collector
	for _, s := range []struct {
		files []string
		c     *collector
	}{
		{[]string{"h1"}, &c1},
		{[]string{"h1", "h2"}, &c2},
		{[]string{"h3"}, &c3},
	} {
		sub, _, err := reg.Subscribe(d, s.files, s.c.deliver)
		if err != nil {
			t.Fatal(err)
		}
		defer sub.Close()
	}

	if err := d.Announce(directory.Announcement{Identity: "alice", Address: addrA, Files: []string{"h2", "h1"}}); err != nil {
		t.Fatal(err)
	}

	if c1.String() != "[{h1 alice}]" {
		t.Errorf("c1 got %v", c1.String())
	}
	if c2.String() != "[{h1 alice} {h2 alice}]" {
		t.Errorf("c2 got %v", c2.String())
	}
	if c3.String() != "[]" {
		t.Errorf("c3 got %v", c3.String())
	}
}

func TestAnnounceDeliversOneBatch(t *testing.T) {
	d, reg := newPushDirectory()

	const files = 1000
	wanted := make([]string, files)
	for i := range wanted {
		wanted[i] = fmt.Sprintf("h%d", i)
	}

	var c collector
	sub, _, err := reg.Subscribe(d, wanted, c.deliver)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if err := d.Announce(directory.Announcement{Identity: "alice", Address: addrA, Files: wanted}); err != nil {
		t.Fatal(err)
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	if c.batches != 1 {
		t.Errorf("expected one delivery, got %d", c.batches)
	}
	if len(c.matches) != files {
		t.Errorf("expected %d matches, got %d", files, len(c.matches))
	}
}

func TestSubscribeDuringAnnouncesExactlyOnce(t *testing.T) {
	d, reg := newPushDirectory()

	const peers = 200
	var c collector
	var sub *Subscription

	var wg sync.WaitGroup
	for i := 0; i < peers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("peer%d", i)
			if err := d.Announce(directory.Announcement{Identity: id, Address: addrA, Files: []string{"X"}}); err != nil {
				t.Error(err)
			}
		}(i)
		if i == peers/2 {
			var err error
			var current []Match
			sub, current, err = reg.Subscribe(d, []string{"X"}, c.deliver)
			if err != nil {
				t.Fatal(err)
			}
			c.deliver(current)
		}
	}
	wg.Wait()
	defer sub.Close()

	c.mut.Lock()
	defer c.mut.Unlock()
	seen := make(map[string]int)
	for _, m := range c.matches {
		seen[m.Peer]++
	}
	if len(seen) != peers {
		t.Errorf("saw %d peers, expected %d", len(seen), peers)
	}
	for peer, n := range seen {
		if n != 1 {
			t.Errorf("peer %s delivered %d times", peer, n)
		}
	}
}

type testClock struct {
	mut sync.Mutex
	now time.Time
}

func (t *testClock) wind(d time.Duration) {
	t.mut.Lock()
	t.now = t.now.Add(d)
	t.mut.Unlock()
}

func (t *testClock) Now() time.Time {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.now = t.now.Add(time.Nanosecond)
	return t.now
}
