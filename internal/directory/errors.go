// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import "errors"

// The error kinds returned by directory operations. Errors returned from
// this package wrap one of these and should be tested with errors.Is. A
// failed operation never changes directory state.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrIdentityLocked = errors.New("identity is bound to another address")
	ErrNotFound       = errors.New("no such peer")
)
