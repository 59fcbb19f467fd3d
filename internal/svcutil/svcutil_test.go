// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package svcutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func TestFatalErr(t *testing.T) {
	base := errors.New("listen failed")
	ferr := AsFatalErr(base, ExitError)

	if !errors.Is(ferr, suture.ErrTerminateSupervisorTree) {
		t.Error("fatal error should terminate the tree")
	}
	if !errors.Is(ferr, base) {
		t.Error("fatal error should unwrap to the cause")
	}
	if again := AsFatalErr(ferr, ExitSuccess); again != ferr || again.Status != ExitError {
		t.Error("fatal error was wrapped twice")
	}
}

type failingService struct{}

func (failingService) Serve(context.Context) error {
	return AsFatalErr(errors.New("boom"), ExitError)
}

func TestFatalErrStopsSupervisor(t *testing.T) {
	sup := suture.New("test", Spec())
	sup.Add(failingService{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := sup.Serve(ctx)
	var ferr *FatalErr
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FatalErr, got %v", err)
	}
	if ferr.Status != ExitError {
		t.Errorf("unexpected status %v", ferr.Status)
	}
}
