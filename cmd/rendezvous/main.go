// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command rendezvous is a discovery service for peers sharing content by
// hash. Peers announce the content identifiers they hold and ask who holds
// the ones they want; the connections between peers are negotiated
// elsewhere.
//
// In pull mode the service speaks plain HTTP and forgets peers that have
// not pinged within the liveness window. In push mode peers keep a
// websocket open, receive matches as other peers announce, and are
// forgotten when the connection closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/calmh/incontainer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/syncthing/rendezvous/internal/build"
	"github.com/syncthing/rendezvous/internal/directory"
	"github.com/syncthing/rendezvous/internal/liveness"
	"github.com/syncthing/rendezvous/internal/slogutil"
	"github.com/syncthing/rendezvous/internal/svcutil"
)

const (
	modePull = "pull"
	modePush = "push"
)

type CLI struct {
	Mode           string        `help:"Delivery model: pull (HTTP polling, peers expire) or push (websocket subscriptions)" enum:"pull,push" default:"pull" env:"RENDEZVOUS_MODE"`
	Listen         string        `help:"Host or IP to listen on" default:"" env:"LISTEN_HOST"`
	Port           int           `help:"Port to listen on" default:"3000" env:"PORT"`
	MetricsListen  string        `help:"Address to serve Prometheus metrics on, empty to disable" default:"" env:"METRICS_LISTEN"`
	LivenessWindow time.Duration `help:"Pull mode: how long a peer stays listed without a ping" default:"60s" env:"LIVENESS_WINDOW"`
	SweepInterval  time.Duration `help:"Pull mode: how often expired peers are removed" default:"10s" env:"SWEEP_INTERVAL"`
	BehindProxy    bool          `help:"Take the client address from X-Forwarded-For (behind a reverse proxy)" env:"BEHIND_PROXY"`
	LimitAvg       float64       `help:"Allowed average request rate per client address, per second; zero disables limiting" default:"5" env:"LIMIT_AVG"`
	LimitBurst     int           `help:"Allowed request burst per client address" default:"20" env:"LIMIT_BURST"`
	LimitCache     int           `help:"Number of client addresses to track for rate limiting" default:"10240" env:"LIMIT_CACHE"`
	Debug          bool          `help:"Enable debug logging" env:"DEBUG"`
	Version        bool          `help:"Show version and exit"`
}

func (c *CLI) listenAddr() string {
	return net.JoinHostPort(c.Listen, strconv.Itoa(c.Port))
}

func main() {
	var params CLI
	kong.Parse(&params, kong.Description("Content hash rendezvous service."))

	if params.Version {
		fmt.Println(build.LongVersion)
		return
	}
	if params.Debug {
		slogutil.SetDefaultLevel(slog.LevelDebug)
	}

	slog.Info(build.LongVersion, slog.Bool("container", incontainer.Detect()))
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		slog.Warn("Failed to adjust GOMAXPROCS", slogutil.Error(err))
	}
	buildInfo.WithLabelValues(build.Version, runtime.Version(), build.User, build.Date.UTC().Format("2006-01-02T15:04:05Z"), params.Mode).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	main, err := newSupervisor(params)
	if err != nil {
		slog.Error("Failed to set up", slogutil.Error(err))
		os.Exit(svcutil.ExitError.AsInt())
	}

	err = main.Serve(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		slog.Info("Exiting")
		return
	}
	status := svcutil.ExitError
	var ferr *svcutil.FatalErr
	if errors.As(err, &ferr) {
		status = ferr.Status
	}
	slog.Error("Exiting", slogutil.Error(err))
	os.Exit(status.AsInt())
}

// newSupervisor builds the service tree for the configured mode.
func newSupervisor(params CLI) (*suture.Supervisor, error) {
	limit, err := newLimiter(params.LimitCache, params.LimitAvg, params.LimitBurst)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	main := suture.New("main", svcutil.Spec())

	var handler http.Handler
	switch params.Mode {
	case modePull:
		expiry := liveness.NewExpiry(params.LivenessWindow)
		dir := directory.New(expiry, nil)
		main.Add(liveness.NewSweeper(dir, params.SweepInterval))
		handler = newAPISrv(dir, params.BehindProxy, limit).handler()
		slog.Info("Running in pull mode", slog.Duration("window", expiry.Window()), slog.Duration("sweep", params.SweepInterval))

	case modePush:
		reg := liveness.NewRegistry()
		dir := directory.New(reg, nil)
		handler = newWSSrv(dir, reg, params.BehindProxy, limit).handler()
		slog.Info("Running in push mode")

	default:
		return nil, fmt.Errorf("unknown mode %q", params.Mode)
	}

	main.Add(newHTTPService(params.Mode, params.listenAddr(), handler))

	if params.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		main.Add(newHTTPService("metrics", params.MetricsListen, mux))
	}

	return main, nil
}
