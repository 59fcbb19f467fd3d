// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"fmt"
	"net/netip"
	"slices"
	"time"
)

// A Record is what the directory knows about one peer.
type Record struct {
	Identity string
	// Address is the address that first claimed Identity. It never changes
	// for the lifetime of the record.
	Address netip.Addr
	// Files is the content announced most recently, in announcement order.
	Files []string
	Seen  time.Time
	// Handle names the connection that owns the record, when the transport
	// has connections. Empty otherwise.
	Handle string
}

func (r Record) clone() Record {
	r.Files = slices.Clone(r.Files)
	return r
}

// Offers returns true if the record announces the given content identifier.
func (r Record) Offers(file string) bool {
	return slices.Contains(r.Files, file)
}

// An Announcement is the input to Directory.Announce.
type Announcement struct {
	Identity string
	Address  netip.Addr
	Files    []string
	Handle   string
}

func (a Announcement) validate() error {
	if a.Identity == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidInput)
	}
	if !a.Address.IsValid() {
		return fmt.Errorf("%w: missing address", ErrInvalidInput)
	}
	if a.Files == nil {
		return fmt.Errorf("%w: missing file list", ErrInvalidInput)
	}
	for i, f := range a.Files {
		if f == "" {
			return fmt.Errorf("%w: empty file identifier at index %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// normalizeAddr drops any IPv4-in-IPv6 mapping and zone so that the same
// host always compares equal to itself.
func normalizeAddr(addr netip.Addr) netip.Addr {
	return addr.Unmap().WithZone("")
}
