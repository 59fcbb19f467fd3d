// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/syncthing/rendezvous/internal/build"
	"github.com/syncthing/rendezvous/internal/directory"
	"github.com/syncthing/rendezvous/internal/slogutil"
	"github.com/syncthing/rendezvous/internal/svcutil"
)

const (
	httpReadTimeout    = 10 * time.Second
	httpWriteTimeout   = 10 * time.Second
	httpMaxHeaderBytes = 1 << 15
	maxRequestSize     = 1 << 20 // 1 MiB

	errorRetryAfterSeconds = 10
	errorRetryFuzzSeconds  = 10
)

var corsHeaders = http.Header{
	"Access-Control-Allow-Origin":      {"*"},
	"Access-Control-Allow-Credentials": {"true"},
	"Access-Control-Allow-Methods":     {"*"},
	"Access-Control-Allow-Headers":     {"*"},
	"Access-Control-Expose-Headers":    {"*"},
}

// An httpService serves a handler on a TCP address until its context is
// cancelled. Setting up the listener is fatal to the whole service tree;
// errors after that are restarted by the supervisor.
type httpService struct {
	name    string
	addr    string
	handler http.Handler
	// Set when listening, for tests.
	ready chan net.Addr
}

func newHTTPService(name, addr string, handler http.Handler) *httpService {
	return &httpService{
		name:    name,
		addr:    addr,
		handler: handler,
		ready:   make(chan net.Addr, 1),
	}
}

func (s *httpService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		slog.Error("Failed to listen", slog.String("service", s.name), slog.String("address", s.addr), slogutil.Error(err))
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}
	slog.Info("Listening", slog.String("service", s.name), slog.String("address", listener.Addr().String()))
	select {
	case s.ready <- listener.Addr():
	default:
	}

	srv := &http.Server{
		Handler:        s.handler,
		ReadTimeout:    httpReadTimeout,
		WriteTimeout:   httpWriteTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
		ErrorLog:       log.New(io.Discard, "", 0),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err = srv.Serve(listener)
	if ctx.Err() != nil {
		return nil
	}
	slog.Warn("HTTP service stopped", slog.String("service", s.name), slogutil.Error(err))
	return err
}

func (s *httpService) String() string {
	return fmt.Sprintf("httpService(%s)@%s", s.name, s.addr)
}

// errBadForwardedFor means the client address header set by the proxy is
// missing or unparsable, which is the request's fault rather than ours.
var errBadForwardedFor = errors.New("missing or invalid X-Forwarded-For")

// remoteResolver decides which address a request comes from.
type remoteResolver struct {
	// behindProxy means the service is behind a reverse proxy that sets
	// X-Forwarded-For.
	behindProxy bool
}

func (r remoteResolver) addr(req *http.Request) (netip.Addr, error) {
	if r.behindProxy {
		// X-Forwarded-For can have multiple client IPs; the first one is
		// the client.
		forwardIP, _, _ := strings.Cut(req.Header.Get("X-Forwarded-For"), ",")
		addr, err := netip.ParseAddr(strings.TrimSpace(forwardIP))
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%w: %w", errBadForwardedFor, err)
		}
		return addr.Unmap(), nil
	}
	ap, err := netip.ParseAddrPort(req.RemoteAddr)
	if err != nil {
		return netip.Addr{}, err
	}
	return ap.Addr().Unmap(), nil
}

type contextKey int

const remoteAddrKey contextKey = iota

// remoteAddr returns the client address stored by the middleware.
func remoteAddr(req *http.Request) netip.Addr {
	addr, _ := req.Context().Value(remoteAddrKey).(netip.Addr)
	return addr
}

// middleware sets the CORS headers, resolves the client address and
// applies rate limiting before handing the request on.
func middleware(remote remoteResolver, limit *limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		for k, v := range corsHeaders {
			w.Header()[k] = v
		}

		addr, err := remote.addr(req)
		if errors.Is(err, errBadForwardedFor) {
			slog.Debug("Bad client address header", slog.String("remote", req.RemoteAddr), slogutil.Error(err))
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Bad Request: " + err.Error()})
			apiRequestsTotal.WithLabelValues("no_remote_addr", strconv.Itoa(http.StatusBadRequest)).Inc()
			return
		}
		if err != nil {
			slog.Debug("Unable to determine remote address", slog.String("remote", req.RemoteAddr), slogutil.Error(err))
			w.Header().Set("Retry-After", errorRetryAfterString())
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
			apiRequestsTotal.WithLabelValues("no_remote_addr", strconv.Itoa(http.StatusInternalServerError)).Inc()
			return
		}
		if !limit.allow(addr) {
			w.Header().Set("Retry-After", errorRetryAfterString())
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too Many Requests"})
			return
		}

		req = req.WithContext(context.WithValue(req.Context(), remoteAddrKey, addr))
		next.ServeHTTP(w, req)
	})
}

// instrument records request count and latency under the given type label.
func instrument(typ string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		t0 := time.Now()
		lw := newLoggingResponseWriter(w)
		defer func() {
			apiRequestsSeconds.WithLabelValues(typ).Observe(time.Since(t0).Seconds())
			apiRequestsTotal.WithLabelValues(typ, strconv.Itoa(lw.statusCode)).Inc()
		}()
		next(lw, req)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Ecode *int   `json:"ecode,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type versionResponse struct {
	Version string `json:"version"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status code corresponding to the directory
// error kind.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, directory.ErrIdentityLocked):
		status = http.StatusForbidden
	case errors.Is(err, directory.ErrNotFound):
		status = http.StatusNotFound
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{Version: build.Version})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{w, http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func errorRetryAfterString() string {
	return strconv.Itoa(errorRetryAfterSeconds + rand.Intn(errorRetryFuzzSeconds))
}
