// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Subsystem: "server",
			Name:      "build_info",
			Help:      "A metric with a constant '1' value labeled by version, goversion, builduser, builddate and mode.",
		}, []string{"version", "goversion", "builduser", "builddate", "mode"})

	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Subsystem: "server",
			Name:      "api_requests_total",
			Help:      "Number of API requests.",
		}, []string{"type", "result"})
	apiRequestsSeconds = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "rendezvous",
			Subsystem:  "server",
			Name:       "api_requests_seconds",
			Help:       "Latency of API requests.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"type"})

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Subsystem: "server",
			Name:      "rate_limited_total",
			Help:      "Number of requests refused by the per address rate limiter.",
		})

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Subsystem: "server",
			Name:      "websocket_connections",
			Help:      "Number of open websocket connections.",
		})
	wsMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Subsystem: "server",
			Name:      "websocket_messages_total",
			Help:      "Number of websocket messages received.",
		}, []string{"event", "result"})
	wsOverflowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Subsystem: "server",
			Name:      "websocket_overflows_total",
			Help:      "Number of websocket connections closed because their send queue filled up.",
		})
)

const (
	resSuccess     = "success"
	resInvalidData = "invalid_data"
	resLocked      = "hostname_locked"
	resNotFound    = "not_found"
	resError       = "internal_error"
	resUnknown     = "unknown_event"
)

func init() {
	prometheus.MustRegister(buildInfo,
		apiRequestsTotal, apiRequestsSeconds,
		rateLimitedTotal,
		wsConnections, wsMessagesTotal, wsOverflowsTotal)
}
