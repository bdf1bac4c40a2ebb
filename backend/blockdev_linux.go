// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

//go:build linux

package backend

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blkGetSize64 is Linux's BLKGETSIZE64 ioctl request number, used to read
// the size of a block device in bytes. It is not exported by
// golang.org/x/sys/unix, so it is reproduced here the way the kernel's
// linux/fs.h defines it: _IOR(0x12, 114, size_t).
const blkGetSize64 = 0x80081272

// blockDeviceSize reads the size of an open block device special file
// using BLKGETSIZE64, since os.File.Stat's Size is always zero for device
// nodes.
func blockDeviceSize(f *os.File) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkGetSize64,
		uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return size, nil
}

// discardRange issues BLKDISCARD for [start, start+length) on a block
// device, used by Block.ZeroAt since punching via fallocate is not
// applicable to a raw device node.
func discardRange(f *os.File, start, length uint64) error {
	rng := [2]uint64{start, length}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKDISCARD,
		uintptr(unsafe.Pointer(&rng[0])))
	if errno != 0 {
		return errno
	}
	return nil
}
