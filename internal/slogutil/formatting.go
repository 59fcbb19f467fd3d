// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"context"
	"io"
	"log/slog"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05"

// A formattingHandler writes one line per record, in the form
//
//	2026-01-02 15:04:05 INF Message text (key=value key=value)
//
// filtering by the level configured for the package that emitted the
// record.
type formattingHandler struct {
	attrs  []slog.Attr
	groups []string
	out    *lockedWriter
	levels *levelTracker
}

type lockedWriter struct {
	mut sync.Mutex
	w   io.Writer
}

func (w *lockedWriter) write(line string) {
	w.mut.Lock()
	_, _ = io.WriteString(w.w, line)
	w.mut.Unlock()
}

var _ slog.Handler = (*formattingHandler)(nil)

func newFormattingHandler(out io.Writer, levels *levelTracker) *formattingHandler {
	return &formattingHandler{
		out:    &lockedWriter{w: out},
		levels: levels,
	}
}

func (h *formattingHandler) Enabled(context.Context, slog.Level) bool {
	// Filtering happens per package in Handle, where the caller is known.
	return true
}

func (h *formattingHandler) Handle(_ context.Context, rec slog.Record) error {
	var extra []slog.Attr
	fr := runtime.CallersFrames([]uintptr{rec.PC})
	if fram, _ := fr.Next(); fram.Function != "" {
		pkg := funcNameToPkg(fram.Function)
		lvl := h.levels.Get(pkg)
		if lvl > rec.Level {
			return nil
		}
		if lvl <= slog.LevelDebug {
			extra = append(extra, slog.String("pkg", pkg), slog.String("src", path.Base(fram.File)+":"+strconv.Itoa(fram.Line)))
		}
	}

	var prefix string
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	var sb strings.Builder
	sb.WriteString(rec.Time.Format(timestampFormat))
	sb.WriteRune(' ')
	sb.WriteString(levelString(rec.Level))
	sb.WriteRune(' ')
	sb.WriteString(rec.Message)

	attrs := make([]slog.Attr, 0, rec.NumAttrs()+len(h.attrs)+len(extra))
	rec.Attrs(func(attr slog.Attr) bool {
		attr.Key = prefix + attr.Key
		attrs = append(attrs, attr)
		return true
	})
	attrs = append(attrs, h.attrs...)
	attrs = append(attrs, extra...)

	var count int
	for _, attr := range attrs {
		for _, attr := range expandAttrs("", attr) {
			appendAttr(&sb, attr, &count)
		}
	}
	if count > 0 {
		sb.WriteRune(')')
	}
	sb.WriteRune('\n')

	h.out.write(sb.String())
	return nil
}

func (h *formattingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		prefix := strings.Join(h.groups, ".") + "."
		for i := range attrs {
			attrs[i].Key = prefix + attrs[i].Key
		}
	}
	return &formattingHandler{
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
		groups: h.groups,
		out:    h.out,
		levels: h.levels,
	}
}

func (h *formattingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &formattingHandler{
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
		out:    h.out,
		levels: h.levels,
	}
}

func expandAttrs(prefix string, a slog.Attr) []slog.Attr {
	if prefix != "" {
		a.Key = prefix + "." + a.Key
	}
	val := a.Value.Resolve()
	if val.Kind() != slog.KindGroup {
		return []slog.Attr{a}
	}
	var attrs []slog.Attr
	for _, attr := range val.Group() {
		attrs = append(attrs, expandAttrs(a.Key, attr)...)
	}
	return attrs
}

func appendAttr(sb *strings.Builder, a slog.Attr, count *int) {
	const confusables = ` "()[]{},=`
	if a.Key == "" {
		return
	}
	sb.WriteRune(' ')
	if *count == 0 {
		sb.WriteRune('(')
	}
	sb.WriteString(a.Key)
	sb.WriteRune('=')
	v := a.Value.Resolve().String()
	if a.Value.Kind() == slog.KindTime {
		v = a.Value.Time().Format(time.RFC3339)
	}
	if v == "" || strings.ContainsAny(v, confusables) {
		v = strconv.Quote(v)
	}
	sb.WriteString(v)
	*count++
}

func levelString(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

// funcNameToPkg returns the short package name of a fully qualified
// function name such as
// "github.com/syncthing/rendezvous/internal/directory.(*Directory).Announce".
func funcNameToPkg(fn string) string {
	fn = strings.ToLower(fn)
	if idx := strings.LastIndex(fn, "/"); idx >= 0 {
		fn = fn[idx+1:]
	}
	pkg, _, _ := strings.Cut(fn, ".")
	return pkg
}
