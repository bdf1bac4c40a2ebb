// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package logging wires the process-wide zerolog logger. Components call
// For to get a sub-logger tagged with their name instead of importing
// zerolog directly, the way the original daemon's per-module
// logging.getLogger(name) loggers worked.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Init replaces it; For derives
// named sub-loggers from it.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()
}

// Init configures the base logger's level and output. level must be one of
// zerolog's level strings ("debug", "info", "warn", "error"); an
// unrecognized level falls back to info, matching the original daemon's
// lenient config.log.level handling.
func Init(level string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stderr
	}
	Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// For returns a sub-logger tagged with component, mirroring the original
// daemon's per-module logger names ("backend.file", "http", "control").
func For(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
