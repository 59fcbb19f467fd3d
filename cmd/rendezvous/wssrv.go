// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syncthing/rendezvous/internal/build"
	"github.com/syncthing/rendezvous/internal/directory"
	"github.com/syncthing/rendezvous/internal/liveness"
	"github.com/syncthing/rendezvous/internal/slogutil"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = maxRequestSize
	// Queued batches per connection. An announcement fanned out to a
	// subscriber is one batch however many of its files match.
	wsOutboxSize = 256
)

// Error codes sent in error events and the 426 response.
const (
	ecodeUpgradeRequired = 0
	ecodeUnknownEvent    = 1
	ecodeInvalidData     = 2
	ecodeHostnameLocked  = 3
)

const (
	eventAnnounce  = "announce-files"
	eventFindPeers = "find-peers"
	eventPing      = "ping"
	eventPong      = "pong"
	eventVersion   = "version"
	eventPeer      = "peer"
	eventError     = "error"
)

// wsRequest is any message received from a client.
type wsRequest struct {
	Event    string   `json:"event"`
	Hostname string   `json:"hostname"`
	Files    []string `json:"files"`
}

type wsEvent struct {
	Event string `json:"event"`
}

type wsVersionEvent struct {
	Event   string `json:"event"`
	Version string `json:"version"`
}

type wsPeerEvent struct {
	Event    string `json:"event"`
	FileHash string `json:"fileHash"`
	Peer     string `json:"peer"`
}

type wsErrorEvent struct {
	Event string `json:"event"`
	Ecode int    `json:"ecode"`
}

// wsSrv is the persistent connection transport. Each connection may own one
// peer record and one subscription, both of which go away with the
// connection.
type wsSrv struct {
	dir      *directory.Directory
	reg      *liveness.Registry
	remote   remoteResolver
	limit    *limiter
	upgrader websocket.Upgrader
}

func newWSSrv(dir *directory.Directory, reg *liveness.Registry, behindProxy bool, limit *limiter) *wsSrv {
	return &wsSrv{
		dir:    dir,
		reg:    reg,
		remote: remoteResolver{behindProxy: behindProxy},
		limit:  limit,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: wsWriteWait,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

func (s *wsSrv) handler() http.Handler {
	return middleware(s.remote, s.limit, http.HandlerFunc(s.route))
}

func (s *wsSrv) route(w http.ResponseWriter, req *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(req):
		instrument("websocket", s.handleUpgrade)(w, req)
	case req.Method == http.MethodGet && req.URL.Path == "/version":
		instrument("version", handleVersion)(w, req)
	default:
		instrument("upgrade_required", func(w http.ResponseWriter, _ *http.Request) {
			ecode := ecodeUpgradeRequired
			writeJSON(w, http.StatusUpgradeRequired, errorResponse{Error: "Upgrade Required", Ecode: &ecode})
		})(w, req)
	}
}

func (s *wsSrv) handleUpgrade(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, corsHeaders)
	if err != nil {
		// The upgrader has already answered the request.
		slog.Debug("Websocket upgrade failed", slogutil.Error(err))
		return
	}
	c := newWSConn(conn, remoteAddr(req), s.dir, s.reg)
	c.serve(req.Context())
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	addr netip.Addr
	dir  *directory.Directory
	reg  *liveness.Registry

	outbox    chan []any
	closed    chan struct{}
	closeOnce sync.Once

	// Only touched by the read loop.
	identity string
	sub      *liveness.Subscription
}

func newWSConn(conn *websocket.Conn, addr netip.Addr, dir *directory.Directory, reg *liveness.Registry) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		conn:   conn,
		addr:   addr,
		dir:    dir,
		reg:    reg,
		outbox: make(chan []any, wsOutboxSize),
		closed: make(chan struct{}),
	}
}

// serve runs the connection until the client goes away or ctx is
// cancelled. The connection's subscription and peer record are released
// before it returns.
func (c *wsConn) serve(ctx context.Context) {
	wsConnections.Inc()
	defer wsConnections.Dec()
	l := slog.With(slog.String("conn", c.id), slogutil.Address(c.addr))
	l.Debug("Websocket connected")

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.closed:
		}
	}()

	defer func() {
		if c.sub != nil {
			c.sub.Close()
		}
		if c.identity != "" {
			c.dir.Release(c.identity, c.id)
		}
		c.close()
		l.Debug("Websocket disconnected", slogutil.Identity(c.identity))
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				l.Debug("Websocket read error", slogutil.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if !c.handleMessage(l, data) {
			return
		}
	}
}

// handleMessage acts on one received message. It returns false if the
// connection should be closed.
func (c *wsConn) handleMessage(l *slog.Logger, data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("Panic handling websocket message", slog.Any("panic", r))
			wsMessagesTotal.WithLabelValues("panic", resError).Inc()
			ok = false
		}
	}()

	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		l.Debug("Undecodable websocket message", slogutil.Error(err))
		wsMessagesTotal.WithLabelValues("undecodable", resInvalidData).Inc()
		c.sendWait(wsErrorEvent{Event: eventError, Ecode: ecodeInvalidData})
		return true
	}

	switch req.Event {
	case eventPing:
		if c.identity != "" {
			// The record may have been taken over by another connection
			// from the same host; that is not this client's problem.
			_ = c.dir.Keepalive(c.identity, c.addr)
		}
		c.sendWait(wsEvent{Event: eventPong})
		wsMessagesTotal.WithLabelValues(req.Event, resSuccess).Inc()

	case eventVersion:
		c.sendWait(wsVersionEvent{Event: eventVersion, Version: build.Version})
		wsMessagesTotal.WithLabelValues(req.Event, resSuccess).Inc()

	case eventAnnounce:
		err := c.dir.Announce(directory.Announcement{
			Identity: req.Hostname,
			Address:  c.addr,
			Files:    req.Files,
			Handle:   c.id,
		})
		if err != nil {
			l.Debug("Announce failed", slogutil.Identity(req.Hostname), slogutil.Error(err))
			c.sendError(req.Event, err)
			return true
		}
		if c.identity != "" && c.identity != req.Hostname {
			c.dir.Release(c.identity, c.id)
		}
		c.identity = req.Hostname
		wsMessagesTotal.WithLabelValues(req.Event, resSuccess).Inc()

	case eventFindPeers:
		if c.sub != nil {
			c.sub.Close()
			c.sub = nil
		}
		sub, current, err := c.reg.Subscribe(c.dir, req.Files, c.deliver)
		if err != nil {
			c.sendError(req.Event, err)
			return true
		}
		c.sub = sub
		if len(current) > 0 {
			c.sendWait(peerEvents(current)...)
		}
		wsMessagesTotal.WithLabelValues(req.Event, resSuccess).Inc()

	default:
		wsMessagesTotal.WithLabelValues("unknown", resUnknown).Inc()
		c.sendWait(wsErrorEvent{Event: eventError, Ecode: ecodeUnknownEvent})
	}
	return true
}

func (c *wsConn) deliver(ms []liveness.Match) {
	c.send(peerEvents(ms)...)
}

func peerEvents(ms []liveness.Match) []any {
	evs := make([]any, len(ms))
	for i, m := range ms {
		evs[i] = wsPeerEvent{Event: eventPeer, FileHash: m.File, Peer: m.Peer}
	}
	return evs
}

func (c *wsConn) sendError(event string, err error) {
	ecode := ecodeInvalidData
	result := resInvalidData
	if errors.Is(err, directory.ErrIdentityLocked) {
		ecode = ecodeHostnameLocked
		result = resLocked
	}
	wsMessagesTotal.WithLabelValues(event, result).Inc()
	c.sendWait(wsErrorEvent{Event: eventError, Ecode: ecode})
}

// send queues messages for the write loop as one batch without blocking. A
// client that does not keep up with its queue is disconnected.
func (c *wsConn) send(msgs ...any) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.outbox <- msgs:
	default:
		wsOverflowsTotal.Inc()
		slog.Debug("Websocket send queue full, closing", slog.String("conn", c.id))
		c.close()
	}
}

// sendWait queues messages as one batch, waiting for room in the queue.
// Only the read loop may use it, for replies to the client's own requests.
func (c *wsConn) sendWait(msgs ...any) {
	select {
	case c.outbox <- msgs:
	case <-c.closed:
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msgs := <-c.outbox:
			for _, msg := range msgs {
				_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := c.conn.WriteJSON(msg); err != nil {
					slog.Debug("Websocket write error", slog.String("conn", c.id), slogutil.Error(err))
					c.close()
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.close()
				return
			}

		case <-c.closed:
			return
		}
	}
}

// close shuts the connection down, which makes the read loop return. It is
// safe to call from any goroutine and more than once, and never blocks, as
// it may be called from another peer's announcement fan-out.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
