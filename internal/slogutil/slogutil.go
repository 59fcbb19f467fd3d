// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package slogutil installs the process wide slog handler and provides a
// few attribute helpers used throughout the service.
package slogutil

import (
	"log/slog"
	"net/netip"
)

// Error returns an attribute for the given error, or an empty attribute if
// the error is nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

func Address(addr netip.Addr) slog.Attr {
	return slog.String("address", addr.String())
}

func Identity(id string) slog.Attr {
	return slog.String("identity", id)
}
