// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package liveness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	peersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rendezvous",
		Subsystem: "liveness",
		Name:      "peers_expired_total",
		Help:      "Number of peer records removed by the expiry sweep.",
	})
	subscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rendezvous",
		Subsystem: "liveness",
		Name:      "subscriptions",
		Help:      "Number of active find-peers subscriptions.",
	})
	notificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rendezvous",
		Subsystem: "liveness",
		Name:      "notifications_total",
		Help:      "Number of peer matches delivered to subscribers.",
	})
)
