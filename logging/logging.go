// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package logging builds the core's structured logger: a log/slog
// frontend over GlogHandler (adapted from the teacher's
// log/handler_glog.go), writing color-aware text to an interactive
// console via github.com/mattn/go-isatty and github.com/mattn/go-colorable,
// or size-rotated JSON to a file via gopkg.in/natefinch/lumberjack.v2 when
// a file path is configured. The teacher's log/compat.go is not reused:
// it exists only to redirect onto github.com/luxfi/log, a dependency
// this module does not carry (see DESIGN.md).
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// FilePath, if non-empty, routes logs to a size-rotated JSON file
	// instead of the console.
	FilePath   string
	MaxSizeMB  int // lumberjack.Logger.MaxSize; defaults to 100 if zero
	MaxBackups int // lumberjack.Logger.MaxBackups; defaults to 5 if zero

	Level slog.Level
}

// New builds a *slog.Logger plus the underlying *GlogHandler, so callers
// can adjust verbosity/vmodule at runtime (e.g. from a SIGHUP handler or
// an RPC debug endpoint).
func New(opts Options) (*slog.Logger, *GlogHandler) {
	var out io.Writer
	var asJSON bool

	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = 5
		}
		out = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		}
		asJSON = true
	} else if isatty.IsTerminal(os.Stdout.Fd()) {
		out = colorable.NewColorableStdout()
	} else {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var base slog.Handler
	if asJSON {
		base = slog.NewJSONHandler(out, handlerOpts)
	} else {
		base = slog.NewTextHandler(out, handlerOpts)
	}

	glog := NewGlogHandler(base)
	glog.Verbosity(opts.Level)
	return slog.New(glog), glog
}
