// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package backend

import (
	"ovirt.org/imageio"
	"ovirt.org/imageio/nbd"
)

// nbdMaxStep bounds a single NBD_CMD_WRITE_ZEROES request issued by ZeroAt,
// mirroring the step nbd.Client.Extents applies to NBD_CMD_BLOCK_STATUS.
const nbdMaxStep = 2*1024*1024*1024 - 1

// NBD is a Backend driving an NBD export through nbd.Client, the
// server-side counterpart to nbd.Connect's read-only client-side adapter
// used by the ovirt-img CLI.
type NBD struct {
	c        *nbd.Client
	readOnly bool
	closed   bool
}

// OpenNBD dials rawURL ("nbd://host:port/export" or
// "nbd+unix:///export?socket=path") and returns a Backend driving it.
func OpenNBD(rawURL string, readOnly bool) (*NBD, error) {
	c, err := nbd.DialURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &NBD{c: c, readOnly: readOnly}, nil
}

func (b *NBD) checkOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Capabilities reports the export's negotiated flags.
func (b *NBD) Capabilities() Capabilities {
	return Capabilities{
		CanZero:    b.c.SupportsWriteZeroes(),
		CanTrim:    b.c.SupportsTrim(),
		CanExtents: b.c.SupportsBlockStatus(),
		ReadOnly:   b.readOnly,
	}
}

func (b *NBD) ReadAt(p []byte, off int64) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.c.ReadAt(p, off)
}

func (b *NBD) WriteAt(p []byte, off int64) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if b.readOnly {
		return 0, ErrReadOnly
	}
	return b.c.WriteAt(p, off)
}

// ZeroAt issues NBD_CMD_WRITE_ZEROES in nbdMaxStep-sized chunks, since a
// single request is bounded by the protocol's 32-bit length field.
func (b *NBD) ZeroAt(off int64, n int64) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.readOnly {
		return ErrReadOnly
	}
	if !b.c.SupportsWriteZeroes() {
		return ErrNotSupported
	}
	for n > 0 {
		step := n
		if step > nbdMaxStep {
			step = nbdMaxStep
		}
		if err := b.c.ZeroAt(off, uint32(step)); err != nil {
			return err
		}
		off += step
		n -= step
	}
	return nil
}

func (b *NBD) Flush() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.c.Flush()
}

func (b *NBD) Size() (uint64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.c.Size(), nil
}

// Extents reports ErrNotSupported when the export never negotiated the
// base:allocation metadata context, matching File/Block's contract for
// backends that cannot report allocation info.
func (b *NBD) Extents(start, length uint64) ([]*imageio.Extent, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if !b.c.SupportsBlockStatus() {
		return nil, ErrNotSupported
	}
	return b.c.Extents(start, length)
}

func (b *NBD) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.c.Close()
}
