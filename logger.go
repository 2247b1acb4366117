// Copyright 2026 The Swoop Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package swoop

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Levels beyond the standard slog set.
const (
	LevelTrace    = slog.Level(-8)
	LevelCritical = slog.Level(12)
)

func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= slog.LevelDebug:
		return "DEBUG"
	case l <= slog.LevelInfo:
		return "INFO"
	case l <= slog.LevelWarn:
		return "WARN"
	case l <= slog.LevelError:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

// ParseLevel converts a level name; the second value is false for names
// it does not know.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "critical":
		return LevelCritical, true
	}
	return slog.LevelInfo, false
}

// LineHandler formats records as
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
type LineHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func NewLineHandler(w io.Writer, level slog.Leveler) *LineHandler {
	return &LineHandler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	sep := " | "
	write := func(group string, a slog.Attr) {
		buf.WriteString(sep)
		sep = ", "
		if group != "" {
			buf.WriteString(group)
			buf.WriteString(".")
		}
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
	}
	// Attributes added through WithAttrs were qualified when added.
	for _, a := range h.attrs {
		write("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(h.group, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		n.attrs = append(n.attrs, a)
	}
	return &n
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	if h.group != "" {
		n.group = h.group + "." + name
	} else {
		n.group = name
	}
	return &n
}

// LogSink is where a process's log lines end up: stderr, an optional
// rotating file, and optionally the in-memory Log served by the status
// API.
type LogSink struct {
	out  *MultiWriter
	file *lumberjack.Logger
}

// Write lets raw lines (for example those captured from a worker's
// stderr) bypass formatting.
func (s *LogSink) Write(b []byte) (int, error) {
	return s.out.Write(b)
}

// Reopen closes and reopens the log file, which is what an operator
// expects after rotating it externally and sending USR1.
func (s *LogSink) Reopen() error {
	if s.file == nil {
		return nil
	}
	return s.file.Rotate()
}

func (s *LogSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// NewLogger builds the process logger described by cfg.  When ring is
// non-nil, every line is also kept there.
func NewLogger(cfg LogConfig, stderr io.Writer, ring *Log) (*slog.Logger, *LogSink) {
	if stderr == nil {
		stderr = os.Stderr
	}
	sink := &LogSink{out: NewMultiWriter(stderr)}
	if cfg.File != "" {
		sink.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: 5,
			MaxAge:     28,
		}
		sink.out.AddWriter(sink.file)
	}
	if ring != nil {
		sink.out.AddWriter(ring)
	}

	level, _ := ParseLevel(cfg.Level)
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(sink.out, &slog.HandlerOptions{Level: level})
	} else {
		h = NewLineHandler(sink.out, level)
	}
	return slog.New(h), sink
}

// discardLogger is used when a component is built without a logger.
func discardLogger() *slog.Logger {
	return slog.New(NewLineHandler(io.Discard, LevelCritical+1))
}
