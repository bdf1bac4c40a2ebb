// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package backend implements the server-side storage abstraction: the
// thing an Operation reads from and writes to on behalf of an authorized
// ticket. File, block device, and in-memory
// backends all satisfy the same interface so the data-plane handlers never
// need to know which one they are driving.
package backend

import (
	"errors"

	"ovirt.org/imageio"
)

// ErrClosed is returned by any method called on a backend after Close,
// mirroring original_source's Closed sentinel object that raises on every
// attribute access once a backend is done.
var ErrClosed = errors.New("backend: operation on closed backend")

// ErrReadOnly is returned when a write-class operation is attempted on a
// backend opened for reading only.
var ErrReadOnly = errors.New("backend: backend is read-only")

// ErrNotSupported is returned by optional capabilities (zero, trim,
// extents) a backend does not implement.
var ErrNotSupported = errors.New("backend: operation not supported")

// Backend is the storage abstraction driven by an Operation. ReadAt and
// WriteAt follow io.ReaderAt/io.WriterAt semantics: they read or write
// exactly len(p) bytes at off, or return an error.
type Backend interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes len(p) bytes starting at off.
	WriteAt(p []byte, off int64) (int, error)

	// ZeroAt writes n zero bytes starting at off, punching a hole when the
	// backend and underlying storage support it. Returns ErrNotSupported
	// if the backend cannot zero-fill.
	ZeroAt(off int64, n int64) error

	// Flush commits any buffered writes to stable storage.
	Flush() error

	// Size returns the logical size of the backend's target in bytes.
	Size() (uint64, error)

	// Extents returns the allocation map for [start, start+length) as a
	// sequence of non-overlapping, ascending Extent values covering the
	// whole range. Returns ErrNotSupported if the backend cannot report
	// allocation info; callers should treat that as one large data extent.
	Extents(start, length uint64) ([]*imageio.Extent, error)

	// Close releases resources held by the backend. Subsequent calls to
	// any other method return ErrClosed.
	Close() error
}

// Capabilities describes what an open backend instance supports, so
// handlers can reject operations up front instead of via a failed call.
type Capabilities struct {
	CanZero    bool
	CanTrim    bool
	CanExtents bool
	ReadOnly   bool
}

// Capable is implemented by backends that can report their capabilities.
// Backends that do not implement it are assumed fully capable and
// read-write.
type Capable interface {
	Capabilities() Capabilities
}
