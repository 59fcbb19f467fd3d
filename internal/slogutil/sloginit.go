// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"io"
	"log/slog"
	"os"
)

var globalLevels = newLevelTracker()

func init() {
	slog.SetDefault(slog.New(newFormattingHandler(logWriter(), globalLevels)))
	if err := SetLevelOverrides(os.Getenv("RZTRACE")); err != nil {
		slog.Warn("Bad log level requested in RZTRACE", Error(err))
	}
}

func logWriter() io.Writer {
	if os.Getenv("LOGGER_DISCARD") != "" {
		// Completely disables logging, for example when running benchmarks.
		return io.Discard
	}
	return os.Stdout
}
