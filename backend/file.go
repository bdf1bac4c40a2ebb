// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package backend

import (
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"ovirt.org/imageio"
)

// File is a Backend backed by a regular file or a raw block device special
// file. Allocation info comes from SEEK_DATA/SEEK_HOLE; zeroing prefers
// FALLOC_FL_PUNCH_HOLE so sparse files stay sparse, falling back to writing
// explicit zero bytes when punching a hole is not supported (some
// filesystems, or a backend opened on a block device without discard).
type File struct {
	mu       sync.Mutex
	f        *os.File
	readOnly bool
	sparse   bool
	closed   bool
}

// OpenFile opens path as a File backend. readOnly controls whether
// WriteAt/ZeroAt are permitted; sparse controls whether ZeroAt prefers
// punching a hole over writing zero bytes.
func OpenFile(path string, readOnly, sparse bool) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	return &File{f: f, readOnly: readOnly, sparse: sparse}, nil
}

func (b *File) checkOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Capabilities reports that File supports zero, trim, and extents, and
// whether it was opened read-only.
func (b *File) Capabilities() Capabilities {
	return Capabilities{
		CanZero:    true,
		CanTrim:    true,
		CanExtents: true,
		ReadOnly:   b.readOnly,
	}
}

func (b *File) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return io.ReadFull(io.NewSectionReader(b.f, off, int64(len(p))), p)
}

func (b *File) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if b.readOnly {
		return 0, ErrReadOnly
	}
	return b.f.WriteAt(p, off)
}

func (b *File) ZeroAt(off int64, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.readOnly {
		return ErrReadOnly
	}
	if n <= 0 {
		return nil
	}

	if b.sparse {
		err := unix.Fallocate(int(b.f.Fd()),
			unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, n)
		if err == nil {
			return nil
		}
		// EOPNOTSUPP means the filesystem cannot punch holes on this
		// file; fall through to writing explicit zeros.
		if err != unix.EOPNOTSUPP {
			return err
		}
	}

	return b.writeZeros(off, n)
}

func (b *File) writeZeros(off int64, n int64) error {
	const chunk = 1 << 20
	buf := make([]byte, chunk)
	for n > 0 {
		size := int64(len(buf))
		if n < size {
			size = n
		}
		if _, err := b.f.WriteAt(buf[:size], off); err != nil {
			return err
		}
		off += size
		n -= size
	}
	return nil
}

func (b *File) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.f.Sync()
}

func (b *File) Size() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeDevice != 0 {
		return blockDeviceSize(b.f)
	}
	return uint64(info.Size()), nil
}

// Extents walks [start, start+length) using SEEK_DATA/SEEK_HOLE, producing
// a minimal set of data/zero extents covering the whole range. ENXIO from
// SEEK_DATA means no data follows, so the rest of the range is a hole. Any
// other error on the first seek is taken to mean SEEK_DATA/SEEK_HOLE is not
// supported, in which case the whole range is reported as one data
// extent, treating an unsupported filesystem as fully allocated.
func (b *File) Extents(start, length uint64) ([]*imageio.Extent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	end := start + length
	fd := int(b.f.Fd())

	var extents []*imageio.Extent
	pos := int64(start)
	for uint64(pos) < end {
		dataStart, err := unix.Seek(fd, pos, unix.SEEK_DATA)
		if err != nil {
			if extents == nil && err != unix.ENXIO {
				return []*imageio.Extent{imageio.NewExtent(start, length, false)}, nil
			}
			// No more data; remainder of the range is a hole.
			extents = append(extents, imageio.NewExtent(uint64(pos), end-uint64(pos), true))
			return clipExtents(extents, start, end), nil
		}

		if uint64(dataStart) > uint64(pos) {
			extents = append(extents, imageio.NewExtent(uint64(pos), uint64(dataStart)-uint64(pos), true))
		}

		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			extents = append(extents, imageio.NewExtent(uint64(dataStart), end-uint64(dataStart), false))
			return clipExtents(extents, start, end), nil
		}

		extentEnd := uint64(holeStart)
		if extentEnd > end {
			extentEnd = end
		}
		extents = append(extents, imageio.NewExtent(uint64(dataStart), extentEnd-uint64(dataStart), false))
		pos = holeStart
	}

	return clipExtents(extents, start, end), nil
}

func clipExtents(extents []*imageio.Extent, start, end uint64) []*imageio.Extent {
	out := extents[:0]
	for _, e := range extents {
		if e.Start+e.Length <= start || e.Start >= end {
			continue
		}
		if e.Start < start {
			e.Length -= start - e.Start
			e.Start = start
		}
		if e.Start+e.Length > end {
			e.Length = end - e.Start
		}
		out = append(out, e)
	}
	return out
}

func (b *File) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.f.Close()
}
