// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package operation implements the streaming engine bound to one
// authorized ticket.Handle and one backend.Backend: Read and Write are
// chunked to bound memory use and check for ticket cancellation between
// chunks so a canceled transfer stops promptly instead of running to
// completion; Zero and Flush check for cancellation once, before the
// backend call.
package operation

import (
	"errors"
	"io"

	"ovirt.org/imageio/backend"
	"ovirt.org/imageio/measure"
	"ovirt.org/imageio/ticket"
)

// DefaultBufferSize is used when a caller does not override chunk size; it
// matches config.Images.BufferSize's default.
const DefaultBufferSize = 128 * 1024

// Operation streams data between an io.Reader/io.Writer and a backend
// within one authorized range, honoring cancellation and accounting the
// bytes actually transferred back to the ticket on completion.
type Operation struct {
	handle     *ticket.Handle
	backend    backend.Backend
	offset     int64
	length     int64
	bufferSize int

	done     int64
	accessed measure.Range
}

// New returns an Operation bound to handle and b, covering [offset,
// offset+length). bufferSize <= 0 selects DefaultBufferSize.
func New(h *ticket.Handle, b backend.Backend, offset, length int64, bufferSize int) *Operation {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Operation{
		handle:     h,
		backend:    b,
		offset:     offset,
		length:     length,
		bufferSize: bufferSize,
		accessed:   measure.Range{Start: uint64(offset), End: uint64(offset)},
	}
}

// ErrCanceled is returned mid-transfer when the bound ticket was canceled
// (an expired ticket yields ticket.ErrExpired instead); callers should
// abort the HTTP response.
var ErrCanceled = ticket.ErrCanceled

// Release reports the range actually transferred back to the ticket. It
// must be called exactly once when the Operation is done, typically via
// defer right after New; Handle.Release tolerates extra calls, so this is
// also safe to defer alongside an early-return release.
func (op *Operation) Release() {
	op.handle.Release(op.accessed)
}

// Read copies op.length bytes starting at op.offset from the backend into
// w, in bufferSize chunks, checking for cancellation before each chunk.
func (op *Operation) Read(w io.Writer) (int64, error) {
	buf := make([]byte, op.bufferSize)
	remaining := op.length
	pos := op.offset

	for remaining > 0 {
		if err := op.handle.CheckCancel(); err != nil {
			return op.done, err
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}

		read, err := op.backend.ReadAt(buf[:n], pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return op.done, err
		}
		if read == 0 {
			break
		}

		if _, werr := w.Write(buf[:read]); werr != nil {
			return op.done, werr
		}

		pos += int64(read)
		remaining -= int64(read)
		op.done += int64(read)
		op.advance(int64(read))
	}

	return op.done, nil
}

// Write copies up to op.length bytes from r into the backend starting at
// op.offset, in bufferSize chunks, checking for cancellation before each
// chunk. It does not flush; durability takes a separate Flush.
func (op *Operation) Write(r io.Reader) (int64, error) {
	buf := make([]byte, op.bufferSize)
	remaining := op.length
	pos := op.offset

	for remaining > 0 {
		if err := op.handle.CheckCancel(); err != nil {
			return op.done, err
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}

		read, err := io.ReadFull(r, buf[:n])
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return op.done, err
		}
		if read == 0 {
			break
		}

		if _, werr := op.backend.WriteAt(buf[:read], pos); werr != nil {
			return op.done, werr
		}

		pos += int64(read)
		remaining -= int64(read)
		op.done += int64(read)
		op.advance(int64(read))

		if err == io.ErrUnexpectedEOF || err == io.EOF {
			break
		}
	}

	return op.done, nil
}

// Zero zero-fills op.length bytes starting at op.offset.
func (op *Operation) Zero() error {
	if err := op.handle.CheckCancel(); err != nil {
		return err
	}
	if err := op.backend.ZeroAt(op.offset, op.length); err != nil {
		return err
	}
	op.done = op.length
	op.advance(op.length)
	return nil
}

// Flush commits buffered writes to stable storage.
func (op *Operation) Flush() error {
	if err := op.handle.CheckCancel(); err != nil {
		return err
	}
	return op.backend.Flush()
}

// Done returns the number of bytes transferred so far.
func (op *Operation) Done() int64 { return op.done }

func (op *Operation) advance(n int64) {
	op.accessed.End += uint64(n)
}
