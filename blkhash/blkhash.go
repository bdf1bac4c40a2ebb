// ovirt-imageio
// Copyright (C) 2020 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation; either version 2 of the
// License, or (at your option) any later version.

// Package blkhash computes a block-granularity fingerprint of a disk image
// that is stable regardless of how the zero regions of the image happen to
// be represented (a hole, an explicit run of zero bytes, or a zero cluster
// reported by extent information). It mirrors
// original_source/test/blkhash_test.py's two-level digest construction:
// each fixed-size block is hashed individually, and the resulting block
// digests are fed into a second hash instance whose final digest is the
// image checksum.
package blkhash

import (
	"bytes"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// BlockSize is the default block granularity, matching the original's 4 MiB
// default.
const BlockSize = 4 * 1024 * 1024

// DigestSize is the default digest size for BLAKE2b-256.
const DigestSize = 32

func newDigest() hash.Hash {
	h, err := blake2b.New(DigestSize, nil)
	if err != nil {
		// blake2b.New only fails for an unsupported digest size or an
		// oversized key; both are compile-time constants here.
		panic(err)
	}
	return h
}

// Hash computes a blkhash checksum incrementally. The zero value is not
// usable; use New.
type Hash struct {
	blockSize int
	outer     hash.Hash

	buf    []byte // bytes accumulated for the current block
	zero   []byte // cached digest of an all-zero block
	closed bool
}

// New returns a Hash using the default block size.
func New() *Hash {
	return NewSize(BlockSize)
}

// NewSize returns a Hash using the given block size.
func NewSize(blockSize int) *Hash {
	h := &Hash{
		blockSize: blockSize,
		outer:     newDigest(),
		buf:       make([]byte, 0, blockSize),
	}
	h.zero = digestBlock(make([]byte, blockSize))
	return h
}

func digestBlock(block []byte) []byte {
	d := newDigest()
	d.Write(block)
	return d.Sum(nil)
}

// Write feeds raw image bytes into the checksum, matching io.Writer. Bytes
// are buffered into block-sized chunks; each full chunk is hashed, with an
// all-zero chunk taking the cached zero_digest fast path, and the block
// digest feeds the outer hash.
func (h *Hash) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		room := h.blockSize - len(h.buf)
		take := room
		if take > len(p) {
			take = len(p)
		}
		h.buf = append(h.buf, p[:take]...)
		p = p[take:]

		if len(h.buf) == h.blockSize {
			h.consumeBlock(h.buf)
			h.buf = h.buf[:0]
		}
	}
	return n, nil
}

// WriteZero is the zero-extent fast path: it accounts for count zero bytes
// without touching the zero byte buffer more than necessary, using the
// cached zero_digest whenever a full block boundary is crossed. This is
// what makes hashing via extent information produce the same checksum as
// hashing the equivalent raw zero bytes.
func (h *Hash) WriteZero(count uint64) {
	for count > 0 {
		room := uint64(h.blockSize - len(h.buf))
		if room == 0 {
			// Should not happen: consumeBlock always empties buf.
			h.buf = h.buf[:0]
			room = uint64(h.blockSize)
		}

		if count < room {
			h.buf = appendZeros(h.buf, int(count))
			return
		}

		if len(h.buf) == 0 {
			// Whole blocks of zeros: use the cached digest directly
			// instead of materializing a zero-filled buffer and
			// re-hashing it.
			h.outer.Write(h.zero)
			count -= uint64(h.blockSize)
			continue
		}

		h.buf = appendZeros(h.buf, int(room))
		h.consumeBlock(h.buf)
		h.buf = h.buf[:0]
		count -= room
	}
}

func appendZeros(buf []byte, n int) []byte {
	for i := 0; i < n; i++ {
		buf = append(buf, 0)
	}
	return buf
}

func (h *Hash) consumeBlock(block []byte) {
	if isZeroBlock(block) {
		h.outer.Write(h.zero)
		return
	}
	h.outer.Write(digestBlock(block))
}

func isZeroBlock(block []byte) bool {
	// bytes.Equal against a cached zero slice would allocate per call;
	// a direct scan (vectorized by the compiler via word comparisons on
	// most architectures) avoids that.
	for _, b := range block {
		if b != 0 {
			return false
		}
	}
	return true
}

// Sum finalizes the checksum and returns the digest, zero-padding any
// partial trailing block the way the last logical block of an image is
// zero-padded to block_size.
func (h *Hash) Sum() []byte {
	if len(h.buf) > 0 {
		padded := make([]byte, h.blockSize)
		copy(padded, h.buf)
		h.consumeBlock(padded)
		h.buf = h.buf[:0]
	}
	return h.outer.Sum(nil)
}

// Reset clears accumulated state so the Hash can be reused.
func (h *Hash) Reset() {
	h.outer = newDigest()
	h.buf = h.buf[:0]
}

// Equal reports whether two digests are identical; a small helper to avoid
// every caller reaching for bytes.Equal directly.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
