// ovirt-imageio
// Copyright (C) 2018-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package control

import (
	"errors"
	"os"
	"runtime/pprof"
	"sync"
)

// profiler wraps runtime/pprof's CPU profiler with the same start/stop
// guard profile.py's yappi wrapper has: starting twice or stopping an
// idle profiler is a client error, not a panic.
type profiler struct {
	mu      sync.Mutex
	running bool
	file    *os.File
	path    string
}

var errAlreadyRunning = errors.New("profile: already running")
var errNotRunning = errors.New("profile: not running")

func newProfiler(path string) *profiler {
	return &profiler{path: path}
}

func (p *profiler) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errAlreadyRunning
	}
	f, err := os.Create(p.path)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	p.file = f
	p.running = true
	return nil
}

func (p *profiler) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return errNotRunning
	}
	pprof.StopCPUProfile()
	p.file.Close()
	p.file = nil
	p.running = false
	return nil
}

func (p *profiler) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
