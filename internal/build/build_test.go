// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package build

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestSetBuildData(t *testing.T) {
	oldVersion, oldStamp := Version, Stamp
	defer func() {
		Version, Stamp = oldVersion, oldStamp
		_ = setBuildData(nil, false)
	}()

	cases := []struct {
		version, stamp string
		ok             bool
	}{
		{"v0.1.0", "0", true},
		{"v1.2.3-rc.1", "1700000000", true},
		{"v1.2.3+4-gabcdef0", "0", true},
		{"v1.2.3-some-custom-tag", "0", true},
		{devVersion, "0", true},
		{"1.2.3", "0", false},
		{"v1.2", "0", false},
		{"v1.2.3", "yesterday", false},
	}

	for _, tc := range cases {
		Version, Stamp = tc.version, tc.stamp
		err := setBuildData(nil, false)
		if (err == nil) != tc.ok {
			t.Errorf("%q/%q: unexpected error %v", tc.version, tc.stamp, err)
			continue
		}
		if err != nil {
			continue
		}
		if !strings.HasPrefix(LongVersion, "rendezvous "+tc.version+" (") {
			t.Errorf("%q: unexpected long version %q", tc.version, LongVersion)
		}
	}
}

func TestBuildInfoFallback(t *testing.T) {
	oldVersion, oldStamp := Version, Stamp
	defer func() {
		Version, Stamp = oldVersion, oldStamp
		_ = setBuildData(nil, false)
	}()

	info := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}

	Version, Stamp = devVersion, "0"
	if err := setBuildData(info, true); err != nil {
		t.Fatal(err)
	}
	if Version != "v1.4.0" || Revision != "0123456789ab" {
		t.Errorf("unexpected version %q revision %q", Version, Revision)
	}
	if !Date.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected date %v", Date)
	}

	// A stamped version wins over the module version.
	Version, Stamp = "v2.0.0", "1700000000"
	if err := setBuildData(info, true); err != nil {
		t.Fatal(err)
	}
	if Version != "v2.0.0" || !Date.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected version %q date %v", Version, Date)
	}
	if !strings.HasPrefix(LongVersion, "rendezvous v2.0.0 0123456789ab (") {
		t.Errorf("unexpected long version %q", LongVersion)
	}
}
