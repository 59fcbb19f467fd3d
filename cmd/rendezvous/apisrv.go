// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/syncthing/rendezvous/internal/directory"
	"github.com/syncthing/rendezvous/internal/slogutil"
)

// announceRequest is the body of announce-files, ping and disconnect.
type announceRequest struct {
	Hostname string   `json:"hostname"`
	Files    []string `json:"files"`
}

// apiSrv is the request/response transport. Clients poll find-peers and
// keep their own record alive with ping.
type apiSrv struct {
	dir    directory.Service
	remote remoteResolver
	limit  *limiter
}

func newAPISrv(dir directory.Service, behindProxy bool, limit *limiter) *apiSrv {
	return &apiSrv{
		dir:    dir,
		remote: remoteResolver{behindProxy: behindProxy},
		limit:  limit,
	}
}

func (s *apiSrv) handler() http.Handler {
	r := httprouter.New()
	// Unknown paths are 404s, never redirects to a similar route.
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandlerFunc(http.MethodPost, "/announce-files", instrument("announce", s.handleAnnounce))
	r.HandlerFunc(http.MethodPost, "/find-peers", instrument("find", s.handleFindPeers))
	r.HandlerFunc(http.MethodPost, "/ping", instrument("ping", s.handlePing))
	r.HandlerFunc(http.MethodPost, "/disconnect", instrument("disconnect", s.handleDisconnect))
	r.HandlerFunc(http.MethodGet, "/version", instrument("version", handleVersion))

	r.NotFound = instrument("not_found", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not Found"})
	})
	r.MethodNotAllowed = instrument("method_not_allowed", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method Not Allowed"})
	})
	r.GlobalOPTIONS = instrument("options", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v any) {
		slog.Error("Panic handling request", slog.String("path", req.URL.Path), slog.Any("panic", v))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}

	return middleware(s.remote, s.limit, r)
}

func (s *apiSrv) handleAnnounce(w http.ResponseWriter, req *http.Request) {
	var ann announceRequest
	if !decodeBody(w, req, &ann) {
		return
	}
	addr := remoteAddr(req)
	err := s.dir.Announce(directory.Announcement{
		Identity: ann.Hostname,
		Address:  addr,
		Files:    ann.Files,
	})
	if err != nil {
		slog.Debug("Announce failed", slogutil.Identity(ann.Hostname), slogutil.Address(addr), slogutil.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *apiSrv) handleFindPeers(w http.ResponseWriter, req *http.Request) {
	var files []string
	if !decodeBody(w, req, &files) {
		return
	}
	res, err := s.dir.FindPeers(files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiSrv) handlePing(w http.ResponseWriter, req *http.Request) {
	var ann announceRequest
	if !decodeBody(w, req, &ann) {
		return
	}
	if err := s.dir.Keepalive(ann.Hostname, remoteAddr(req)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *apiSrv) handleDisconnect(w http.ResponseWriter, req *http.Request) {
	var ann announceRequest
	if !decodeBody(w, req, &ann) {
		return
	}
	if err := s.dir.Withdraw(ann.Hostname, remoteAddr(req)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// decodeBody reads a JSON request body into v, answering 400 and returning
// false if that is not possible.
func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	body := io.LimitReader(req.Body, maxRequestSize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		slog.Debug("Bad request body", slog.String("path", req.URL.Path), slogutil.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Bad Request: " + err.Error()})
		return false
	}
	return true
}
