// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

//go:build !linux

package backend

import "os"

func blockDeviceSize(f *os.File) (uint64, error) {
	return 0, ErrNotSupported
}

func discardRange(f *os.File, start, length uint64) error {
	return ErrNotSupported
}
