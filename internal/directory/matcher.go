// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"fmt"
	"slices"
)

// Match returns, for each distinct requested content identifier, the
// identities of the records offering it. Every requested identifier is
// present in the result; those nobody offers map to an empty list.
// Identities are sorted.
func Match(records []Record, files []string) map[string][]string {
	res := make(map[string][]string, len(files))
	for _, f := range files {
		if _, ok := res[f]; ok {
			continue
		}
		peers := []string{}
		for _, rec := range records {
			if rec.Offers(f) {
				peers = append(peers, rec.Identity)
			}
		}
		slices.Sort(peers)
		res[f] = peers
	}
	return res
}

// Matches returns the wanted content identifiers that rec offers, each at
// most once, in the order they appear in wanted.
func Matches(rec Record, wanted []string) []string {
	var res []string
	for _, f := range wanted {
		if rec.Offers(f) && !slices.Contains(res, f) {
			res = append(res, f)
		}
	}
	return res
}

// ValidateQuery checks a list of requested content identifiers. An empty
// list is rejected, as is any empty identifier.
func ValidateQuery(files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: empty file list", ErrInvalidInput)
	}
	for i, f := range files {
		if f == "" {
			return fmt.Errorf("%w: empty file identifier at index %d", ErrInvalidInput, i)
		}
	}
	return nil
}
