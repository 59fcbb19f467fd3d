// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Levels are tracked per package, keyed by the last element of the import
// path. RZTRACE names packages to run at DEBUG, optionally with an explicit
// level after a colon:
//
//	RZTRACE="directory,liveness:WARN"

func SetDefaultLevel(level slog.Level) {
	globalLevels.SetDefault(level)
}

func SetPackageLevel(pkg string, level slog.Level) {
	globalLevels.Set(pkg, level)
}

// SetLevelOverrides applies an RZTRACE style string. Entries that do not
// parse are skipped and reported in the returned error.
func SetLevelOverrides(trace string) error {
	levels, err := parseLevelOverrides(trace)
	for pkg, level := range levels {
		globalLevels.Set(pkg, level)
	}
	return err
}

func parseLevelOverrides(trace string) (map[string]slog.Level, error) {
	levels := make(map[string]slog.Level)
	var errs []error
	for _, entry := range strings.Split(trace, ",") {
		pkg, levelStr, explicit := strings.Cut(strings.TrimSpace(entry), ":")
		if pkg == "" {
			continue
		}
		level := slog.LevelDebug
		if explicit {
			if err := level.UnmarshalText([]byte(levelStr)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", pkg, err))
				continue
			}
		}
		levels[pkg] = level
	}
	return levels, errors.Join(errs...)
}

type levelTracker struct {
	defLevel atomic.Int64
	levels   *xsync.MapOf[string, slog.Level]
}

func newLevelTracker() *levelTracker {
	return &levelTracker{levels: xsync.NewMapOf[string, slog.Level]()}
}

func (t *levelTracker) Get(pkg string) slog.Level {
	if level, ok := t.levels.Load(pkg); ok {
		return level
	}
	return slog.Level(t.defLevel.Load())
}

func (t *levelTracker) Set(pkg string, level slog.Level) {
	t.levels.Store(pkg, level)
}

func (t *levelTracker) SetDefault(level slog.Level) {
	t.defLevel.Store(int64(level))
}
