// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	peersKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rendezvous",
		Subsystem: "directory",
		Name:      "peers",
		Help:      "Number of peer records currently stored.",
	})
	peerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rendezvous",
		Subsystem: "directory",
		Name:      "operations_total",
		Help:      "Number of directory operations.",
	}, []string{"operation", "result"})
	peerOperationSeconds = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  "rendezvous",
		Subsystem:  "directory",
		Name:       "operation_seconds",
		Help:       "Latency of directory operations.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"operation"})
)

const (
	opAnnounce  = "announce"
	opKeepalive = "keepalive"
	opWithdraw  = "withdraw"
	opRelease   = "release"
	opFind      = "find"
	opSweep     = "sweep"

	resSuccess        = "success"
	resInvalidInput   = "invalid_input"
	resIdentityLocked = "identity_locked"
	resNotFound       = "not_found"
	resError          = "error"
)
