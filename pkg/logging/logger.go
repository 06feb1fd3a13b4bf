// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Concierge components.
//
// The package wraps log/slog with two destinations: stderr (text by
// default, JSON for containerized deployments) and an optional JSON log
// file per service per day. The service name is attached to every entry
// so aggregated logs can be filtered by component.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Service: "concierge", JSON: true})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// # Security Considerations
//
// Nothing here redacts sensitive data. Callers must not log customer
// message content, API keys, or tenant secrets; log metadata instead
// (lengths, presence flags, ids).
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a logger emits. Values follow slog
// conventions: Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN" or "ERROR".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel reads a level name case-insensitively; unknown names map
// to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. The zero value writes Info and above to
// stderr as text.
type Config struct {
	// Level is the minimum severity to emit. Default: LevelInfo.
	Level Level

	// Service is attached to every entry as the "service" attribute.
	Service string

	// JSON switches stderr output to JSON. File output is always JSON.
	JSON bool

	// LogDir enables file logging to {Service}_{YYYY-MM-DD}.log inside
	// the directory, which is created with 0750 if missing. Supports a
	// leading ~ for the home directory.
	LogDir string

	// Quiet drops stderr output, keeping only the file (daemon mode).
	Quiet bool
}

// Logger is a leveled, multi-destination structured logger.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying slog handlers serialize
// writes and Close is guarded by a mutex.
type Logger struct {
	slogger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger from the config. File-open failures degrade to
// stderr-only with a warning rather than failing startup.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	l := &Logger{}
	if cfg.LogDir != "" {
		if f, err := openLogFile(cfg.LogDir, cfg.Service); err != nil {
			fmt.Fprintf(os.Stderr, "logging: file logging disabled: %v\n", err)
		} else {
			l.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		h = handlers[0]
	default:
		h = newMultiHandler(handlers...)
	}

	l.slogger = slog.New(h)
	if cfg.Service != "" {
		l.slogger = l.slogger.With("service", cfg.Service)
	}
	return l
}

// Default returns a stderr-only Logger at Info level.
func Default() *Logger {
	return New(Config{})
}

func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// With returns a Logger carrying the extra attributes on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), file: nil}
}

// Slog exposes the underlying slog.Logger for slog.SetDefault and for
// libraries that accept one.
func (l *Logger) Slog() *slog.Logger { return l.slogger }

// Close flushes and closes the log file, if any. Safe to call on a
// file-less or already-closed Logger.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if service == "" {
		service = "concierge"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().UTC().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
