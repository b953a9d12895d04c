// Package log provides category-tagged structured logging for the soundboard.
//
// The TUI owns stdout, so log records go to a file (or any io.Writer set via
// SetOutput). Until Init or SetOutput is called, records are discarded.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Category tags a log record with the subsystem that produced it.
type Category string

// Log categories.
const (
	CatConfig  Category = "config"
	CatDB      Category = "db"
	CatUI      Category = "ui"
	CatCache   Category = "cache"
	CatAudio   Category = "audio"
	CatCatalog Category = "catalog"
	CatHTTP    Category = "http"
)

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	level  = new(slog.LevelVar)
)

// Init opens (or creates) the log file at path and routes all records to it.
// When debug is false, debug records are dropped.
// The returned function closes the file.
func Init(path string, debug bool) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // G304: path comes from config
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	SetOutput(f, debug)
	return f.Close, nil
}

// SetOutput routes records to w. Tests use it with a bytes.Buffer.
func SetOutput(w io.Writer, debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	mu.Lock()
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	mu.Unlock()
}

func emit(lvl slog.Level, cat Category, msg string, args []any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if !l.Enabled(context.Background(), lvl) {
		return
	}
	l.Log(context.Background(), lvl, msg, append([]any{"cat", string(cat)}, args...)...)
}

// Debug logs at debug level.
func Debug(cat Category, msg string, args ...any) { emit(slog.LevelDebug, cat, msg, args) }

// Info logs at info level.
func Info(cat Category, msg string, args ...any) { emit(slog.LevelInfo, cat, msg, args) }

// Warn logs at warn level.
func Warn(cat Category, msg string, args ...any) { emit(slog.LevelWarn, cat, msg, args) }

// Error logs at error level.
func Error(cat Category, msg string, args ...any) { emit(slog.LevelError, cat, msg, args) }

// ErrorErr logs at error level with err attached under the "error" key.
func ErrorErr(cat Category, msg string, err error, args ...any) {
	emit(slog.LevelError, cat, msg, append([]any{"error", err}, args...))
}
