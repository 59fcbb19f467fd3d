// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"fmt"
	"net/netip"
)

// Guard decides whether an operation presenting addr may touch the existing
// record. A nil existing record means the identity is unclaimed, which is
// always allowed. Otherwise the address must equal the one the identity is
// bound to.
func Guard(existing *Record, addr netip.Addr) error {
	if existing == nil {
		return nil
	}
	if existing.Address == normalizeAddr(addr) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrIdentityLocked, existing.Identity)
}
