// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"
)

func TestMatch(t *testing.T) {
	recs := []Record{
		{Identity: "carol", Files: []string{"h2", "h3"}},
		{Identity: "alice", Files: []string{"h1", "h2"}},
		{Identity: "bob", Files: []string{"h2"}},
	}

	cases := []struct {
		files []string
		res   string
	}{
		{[]string{"h1"}, "map[h1:[alice]]"},
		{[]string{"h2"}, "map[h2:[alice bob carol]]"},
		{[]string{"h3", "h4"}, "map[h3:[carol] h4:[]]"},
		{[]string{"h1", "h1"}, "map[h1:[alice]]"},
		{[]string{"zz"}, "map[zz:[]]"},
	}

	for _, tc := range cases {
		res := Match(recs, tc.files)
		if fmt.Sprint(res) != tc.res {
			t.Errorf("Match(%v) => %v, expected %s", tc.files, res, tc.res)
		}
	}
}

func TestMatches(t *testing.T) {
	rec := Record{Identity: "alice", Files: []string{"h1", "h2", "h3"}}

	cases := []struct {
		wanted []string
		res    string
	}{
		{nil, "[]"},
		{[]string{"h4"}, "[]"},
		{[]string{"h3", "h1"}, "[h3 h1]"},
		{[]string{"h2", "h2"}, "[h2]"},
	}

	for _, tc := range cases {
		res := Matches(rec, tc.wanted)
		if fmt.Sprint(res) != tc.res {
			t.Errorf("Matches(%v) => %v, expected %s", tc.wanted, res, tc.res)
		}
	}
}

func TestGuard(t *testing.T) {
	rec := &Record{Identity: "alice", Address: netip.MustParseAddr("1.1.1.1")}

	if err := Guard(nil, netip.MustParseAddr("9.9.9.9")); err != nil {
		t.Errorf("unclaimed identity rejected: %v", err)
	}
	if err := Guard(rec, netip.MustParseAddr("1.1.1.1")); err != nil {
		t.Errorf("bound address rejected: %v", err)
	}
	if err := Guard(rec, netip.MustParseAddr("::ffff:1.1.1.1")); err != nil {
		t.Errorf("mapped bound address rejected: %v", err)
	}
	if err := Guard(rec, netip.MustParseAddr("3.3.3.3")); !errors.Is(err, ErrIdentityLocked) {
		t.Errorf("expected ErrIdentityLocked, got %v", err)
	}
}
