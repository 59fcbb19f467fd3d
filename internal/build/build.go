// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package build carries version information for the binary. Release builds
// stamp Version, User and Stamp with -ldflags -X; other builds fall back to
// what the Go toolchain recorded about the module and VCS checkout.
package build

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"
)

const devVersion = "unknown-dev"

var (
	// Injected by the release build
	Version = devVersion
	User    = "unknown"
	Stamp   = "0"

	// Set by init()
	Date        time.Time
	Revision    string
	LongVersion string
)

var versionExp = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

func init() {
	if err := setBuildData(debug.ReadBuildInfo()); err != nil {
		slog.Error("Bad build data", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func setBuildData(info *debug.BuildInfo, haveInfo bool) error {
	if Version != devVersion && !versionExp.MatchString(Version) {
		return fmt.Errorf("invalid version string %q", Version)
	}
	stamp, err := strconv.ParseInt(Stamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid build stamp %q: %w", Stamp, err)
	}
	Date = time.Unix(stamp, 0)
	Revision = ""

	if haveInfo {
		if Version == devVersion && versionExp.MatchString(info.Main.Version) {
			Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				Revision = s.Value[:min(len(s.Value), 12)]
			case "vcs.time":
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil && stamp == 0 {
					Date = t
				}
			}
		}
	}

	rev := ""
	if Revision != "" {
		rev = " " + Revision
	}
	LongVersion = fmt.Sprintf("rendezvous %s%s (%s %s-%s) %s %s", Version, rev, runtime.Version(), runtime.GOOS, runtime.GOARCH, User, Date.UTC().Format(time.DateTime))
	return nil
}
