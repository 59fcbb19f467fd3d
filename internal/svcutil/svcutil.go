// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil contains helpers for running the service tree under a
// suture supervisor.
package svcutil

import (
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
)

const ServiceTimeout = 10 * time.Second

type ExitStatus int

const (
	ExitSuccess ExitStatus = 0
	ExitError   ExitStatus = 1
)

func (s ExitStatus) AsInt() int {
	return int(s)
}

// A FatalErr terminates the whole supervisor tree when returned from a
// service, for example when a listener cannot be set up at all.
type FatalErr struct {
	Err    error
	Status ExitStatus
}

// AsFatalErr wraps the given error creating a FatalErr. If the given error
// already is of type FatalErr, it is not wrapped again.
func AsFatalErr(err error, status ExitStatus) *FatalErr {
	var ferr *FatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	return &FatalErr{
		Err:    err,
		Status: status,
	}
}

func (e *FatalErr) Error() string {
	return e.Err.Error()
}

func (e *FatalErr) Unwrap() error {
	return e.Err
}

func (e *FatalErr) Is(target error) bool {
	return target == suture.ErrTerminateSupervisorTree
}

// Spec returns the supervisor spec used for the service tree. Restarts and
// stop timeouts are logged as warnings, panics as errors, and backoff
// transitions at debug level.
func Spec() suture.Spec {
	return suture.Spec{
		EventHook:         logEvent,
		Timeout:           ServiceTimeout,
		PassThroughPanics: true,
	}
}

func logEvent(e suture.Event) {
	switch e := e.(type) {
	case suture.EventServiceTerminate:
		slog.Warn("Service terminated", slog.String("service", e.ServiceName), slog.Any("error", e.Err), slog.Bool("restarting", e.Restarting))
	case suture.EventServicePanic:
		slog.Error("Service panicked", slog.String("service", e.ServiceName), slog.String("panic", e.PanicMsg))
	case suture.EventStopTimeout:
		slog.Warn("Service did not stop in time", slog.String("service", e.ServiceName), slog.Duration("timeout", ServiceTimeout))
	default:
		slog.Debug("Supervisor event", slog.String("event", e.String()))
	}
}
