// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package backend

import (
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"ovirt.org/imageio"
)

// blockAlignment is the I/O alignment O_DIRECT requires on the block
// devices ovirt-imageio targets (LVM logical volumes, multipath devices).
// 4096 covers every physical/logical sector size in practice; the device's
// own sector size is not probed (no BLKSSZGET).
const blockAlignment = 4096

// Block is a Backend for raw block device special files (LVM volumes,
// multipath devices), opened with O_DIRECT so reads/writes bypass the page
// cache the way the original daemon's direct-io backend does. Unlike
// File, it has no SEEK_DATA/SEEK_HOLE allocation info and reports
// ErrNotSupported from Extents; the whole device is always "data" from the
// caller's point of view.
type Block struct {
	mu     sync.Mutex
	f      *os.File
	size   uint64
	closed bool
}

// OpenBlock opens the block device special file at path with O_DIRECT.
func OpenBlock(path string, readOnly bool) (*Block, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag|unix.O_DIRECT, 0)
	if err != nil {
		return nil, err
	}
	size, err := blockDeviceSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Block{f: f, size: size}, nil
}

func (b *Block) checkOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Capabilities reports that Block supports trim but not per-range
// allocation info.
func (b *Block) Capabilities() Capabilities {
	return Capabilities{CanZero: true, CanTrim: true, CanExtents: false}
}

// alignedBuffer returns a freshly allocated n-byte buffer whose address is
// aligned to blockAlignment. O_DIRECT requires the buffer address, offset,
// and length to all be alignment multiples; callers driving this backend
// in chunks sized to blockAlignment satisfy offset and length, leaving
// only the buffer address to fix up here.
func alignedBuffer(n int) []byte {
	buf := make([]byte, n+blockAlignment)
	off := blockAlignment - int(uintptr(unsafe.Pointer(&buf[0]))%blockAlignment)
	return buf[off : off+n : off+n]
}

func (b *Block) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	buf := alignedBuffer(len(p))
	n, err := b.f.ReadAt(buf, off)
	copy(p, buf[:n])
	return n, err
}

func (b *Block) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	buf := alignedBuffer(len(p))
	copy(buf, p)
	return b.f.WriteAt(buf, off)
}

// ZeroAt discards [off, off+n) via BLKDISCARD when possible, falling back
// to writing aligned zero buffers, since block devices have no concept of
// FALLOC_FL_PUNCH_HOLE the way regular files do.
func (b *Block) ZeroAt(off int64, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}

	if err := discardRange(b.f, uint64(off), uint64(n)); err == nil {
		return nil
	}

	const chunk = 1 << 20
	zero := alignedBuffer(chunk)
	for i := range zero {
		zero[i] = 0
	}
	for n > 0 {
		size := int64(len(zero))
		if n < size {
			size = n
		}
		if _, err := b.f.WriteAt(zero[:size], off); err != nil {
			return err
		}
		off += size
		n -= size
	}
	return nil
}

func (b *Block) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.f.Sync()
}

func (b *Block) Size() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.size, nil
}

// Extents is unsupported for raw block devices: there is no cheap way to
// learn the allocation map of an LVM volume from the volume itself.
func (b *Block) Extents(start, length uint64) ([]*imageio.Extent, error) {
	return nil, ErrNotSupported
}

func (b *Block) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.f.Close()
}
