// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"net/netip"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// A limiter keeps a token bucket per client address, for the most recently
// seen addresses.
type limiter struct {
	buckets *lru.Cache[netip.Addr, *rate.Limiter]
	avg     rate.Limit
	burst   int
}

// newLimiter returns a limiter allowing avg requests per second with the
// given burst, or nil (which allows everything) if avg is not positive.
func newLimiter(size int, avg float64, burst int) (*limiter, error) {
	if avg <= 0 {
		return nil, nil
	}
	if burst < 1 {
		burst = 1
	}
	buckets, err := lru.New[netip.Addr, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &limiter{
		buckets: buckets,
		avg:     rate.Limit(avg),
		burst:   burst,
	}, nil
}

func (l *limiter) allow(addr netip.Addr) bool {
	if l == nil {
		return true
	}
	bkt, ok := l.buckets.Get(addr)
	if !ok {
		bkt = rate.NewLimiter(l.avg, l.burst)
		l.buckets.Add(addr, bkt)
	}
	if bkt.Allow() {
		return true
	}
	rateLimitedTotal.Inc()
	return false
}
