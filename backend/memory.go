// ovirt-imageio
// Copyright (C) 2018-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package backend

import (
	"io"
	"sync"

	"ovirt.org/imageio"
)

// Memory is an in-memory Backend backing "memory:" tickets, the same role
// the Python daemon's memory backend plays - originally test-only there,
// reachable from the data plane here via OpenMemory.
type Memory struct {
	mu       sync.Mutex
	buf      []byte
	readOnly bool
	closed   bool
}

// NewMemory returns a Memory backend seeded with size zero bytes.
func NewMemory(size int, readOnly bool) *Memory {
	return &Memory{buf: make([]byte, size), readOnly: readOnly}
}

func (b *Memory) checkOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *Memory) Capabilities() Capabilities {
	return Capabilities{CanZero: true, CanTrim: true, CanExtents: false, ReadOnly: b.readOnly}
}

func (b *Memory) growTo(n int) {
	if n > len(b.buf) {
		grown := make([]byte, n)
		copy(grown, b.buf)
		b.buf = grown
	}
}

func (b *Memory) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if off >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *Memory) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if b.readOnly {
		return 0, ErrReadOnly
	}
	b.growTo(int(off) + len(p))
	n := copy(b.buf[off:], p)
	return n, nil
}

func (b *Memory) ZeroAt(off int64, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.readOnly {
		return ErrReadOnly
	}
	b.growTo(int(off) + int(n))
	zeros := b.buf[off : off+n]
	for i := range zeros {
		zeros[i] = 0
	}
	return nil
}

func (b *Memory) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkOpen()
}

func (b *Memory) Size() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return uint64(len(b.buf)), nil
}

// Extents reports the whole requested range as a single data extent: the
// in-memory backend never tracks sparseness.
func (b *Memory) Extents(start, length uint64) ([]*imageio.Extent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	return []*imageio.Extent{imageio.NewExtent(start, length, false)}, nil
}

func (b *Memory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Bytes returns a copy of the current buffer contents, for test assertions.
func (b *Memory) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// memoryRegistry holds one shared Memory buffer per ticket id. Unlike a
// file or block device, a memory backend has no storage to reopen, so the
// same buffer must survive across the several HTTP requests a ticket's
// lifetime spans. Entries are never removed; they are reclaimed with the
// process, trading a bounded per-ticket leak for the simplicity of not
// threading ticket-removal notifications into this package.
var memoryRegistry sync.Map // id string -> *Memory

// OpenMemory returns the Memory backend shared by every request against
// ticket id, creating it seeded with size zero bytes on first use. The
// returned handle enforces readOnly for this caller without closing or
// otherwise disturbing the shared buffer when the caller is done with it.
func OpenMemory(id string, size uint64, readOnly bool) *memoryHandle {
	actual, _ := memoryRegistry.LoadOrStore(id, NewMemory(int(size), false))
	return &memoryHandle{Memory: actual.(*Memory), readOnly: readOnly}
}

// memoryHandle is one request's view onto a shared Memory buffer: it
// enforces this request's own readOnly flag and leaves the buffer open
// for the ticket's other requests when Close is called.
type memoryHandle struct {
	*Memory
	readOnly bool
}

func (h *memoryHandle) Capabilities() Capabilities {
	c := h.Memory.Capabilities()
	c.ReadOnly = h.readOnly
	return c
}

func (h *memoryHandle) WriteAt(p []byte, off int64) (int, error) {
	if h.readOnly {
		return 0, ErrReadOnly
	}
	return h.Memory.WriteAt(p, off)
}

func (h *memoryHandle) ZeroAt(off, n int64) error {
	if h.readOnly {
		return ErrReadOnly
	}
	return h.Memory.ZeroAt(off, n)
}

// Close is a no-op: the underlying buffer outlives any single request.
func (h *memoryHandle) Close() error {
	return nil
}
