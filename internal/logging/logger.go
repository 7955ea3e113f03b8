// Package logging provides leveled logging and game tracing for equilibria.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A GameTracer for structured JSONL game traces (~/.equilibria/games.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/equilibria/internal/constants"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level the game tracer also records both players' post-update
// strategies with every game outcome.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// GameTracer writes structured game events to a JSONL file.
// It is safe for concurrent use. A nil GameTracer is safe to use;
// all methods are no-ops on nil receiver.
type GameTracer struct {
	mu    sync.Mutex
	file  *os.File
	level slog.Level
}

// NewGameTracer creates a tracer writing to dir/games.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewGameTracer(dir string, level string) *GameTracer {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, constants.GameTraceFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &GameTracer{file: f, level: lvl}
}

// Verbose reports whether the tracer was opened at trace level.
// Safe to call on nil receiver.
func (gt *GameTracer) Verbose() bool {
	return gt != nil && gt.level <= LevelTrace
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (gt *GameTracer) Log(event map[string]any) {
	if gt == nil || gt.file == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	gt.mu.Lock()
	defer gt.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = gt.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (gt *GameTracer) Close() {
	if gt == nil || gt.file == nil {
		return
	}

	gt.mu.Lock()
	defer gt.mu.Unlock()

	gt.file.Close()
	gt.file = nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
