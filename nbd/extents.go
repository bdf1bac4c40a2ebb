// ovirt-imageio
// Copyright (C) 2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation; either version 2 of the
// License, or (at your option) any later version.

package nbd

import "ovirt.org/imageio"

// maxStep bounds a single NBD_CMD_BLOCK_STATUS request to a little below the
// protocol's 4 GiB - 1 limit, to bound per-reply memory use.
const maxStep = 2*1024*1024*1024 - 1

// Extents returns the merged, normalized sequence of extents covering
// [offset, offset+length). If length is 0, the range extends to the end of
// the export. It is the Go analogue of nbdutil.extents(), issuing as many
// NBD_CMD_BLOCK_STATUS requests as needed to handle short and
// single-extent replies, clips the last entry of a long reply to the
// requested range, and merges consecutive entries with equal zero-ness
// across replies.
func (c *Client) Extents(offset, length uint64) ([]*imageio.Extent, error) {
	end := offset + length
	if length == 0 {
		end = c.size
	}
	if end > c.size {
		end = c.size
	}

	var result []*imageio.Extent
	var cur *imageio.Extent

	for offset < end {
		step := end - offset
		if step > maxStep {
			step = maxStep
		}

		raw, err := c.blockStatus(offset, uint32(step))
		if err != nil {
			return nil, err
		}

		for _, e := range raw {
			if offset >= end {
				break
			}

			length := uint64(e.Length)
			if offset+length > end {
				// Long reply: the server sent an extent crossing the
				// requested end. Clip it rather than trusting the server.
				length = end - offset
			}

			zero := e.Flags&stateZero != 0

			if cur == nil {
				cur = imageio.NewExtent(offset, length, zero)
			} else if cur.Zero == zero {
				cur.Length += length
			} else {
				result = append(result, cur)
				cur = imageio.NewExtent(offset, length, zero)
			}

			offset += length
		}
	}

	if cur != nil {
		result = append(result, cur)
	}

	return result, nil
}
