// ovirt-imageio
// Copyright (C) 2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation; either version 2 of the
// License, or (at your option) any later version.

package nbd

import "ovirt.org/imageio"

// Connect dials an "nbd://" or "nbd+unix://" URL and returns an
// imageio.Backend, the same role libguestfs.org/libnbd played for the
// original ovirt-img tool. Size and Extents are cheap: the export size
// comes from the handshake, and extents are fetched lazily by the caller.
func Connect(url string) (imageio.Backend, error) {
	c, err := DialURL(url)
	if err != nil {
		return nil, err
	}
	return &clientBackend{c}, nil
}

// clientBackend adapts Client's richer API (ReadAt/WriteAt/Flush,
// Size() uint64, Close() error) to the narrower imageio.Backend contract
// the ovirt-img CLI tools use.
type clientBackend struct {
	c *Client
}

func (b *clientBackend) Size() (uint64, error) {
	return b.c.Size(), nil
}

func (b *clientBackend) Extents() (imageio.ExtentsResult, error) {
	extents, err := b.c.Extents(0, b.c.Size())
	if err != nil {
		return nil, err
	}
	return imageio.NewExtentsWrapper(extents), nil
}

func (b *clientBackend) Close() {
	b.c.Close()
}
