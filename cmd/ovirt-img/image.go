// ovirt-imageio
// Copyright (C) 2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"ovirt.org/imageio/qemuimg"
)

func createCmd(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	format := fs.String("f", "qcow2", "image format")
	backing := fs.String("b", "", "backing file")
	size := fs.Uint64("s", 0, "virtual size in bytes")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("usage: ovirt-img create [-f FORMAT] [-b BACKING] [-s SIZE] PATH")
	}

	err := qemuimg.Create(fs.Arg(0), qemuimg.CreateOptions{
		Format:  *format,
		Size:    *size,
		Backing: *backing,
	})
	if err != nil {
		log.Fatalf("%s", err)
	}
}

func convertCmd(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	srcFormat := fs.String("f", "", "source format")
	dstFormat := fs.String("O", "qcow2", "destination format")
	fs.Parse(args)

	if fs.NArg() != 2 {
		log.Fatal("usage: ovirt-img convert [-f SRC_FORMAT] [-O DST_FORMAT] SRC DST")
	}

	if err := qemuimg.Convert(fs.Arg(0), fs.Arg(1), *srcFormat, *dstFormat); err != nil {
		log.Fatalf("%s", err)
	}
}

func compareCmd(args []string) {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 2 {
		log.Fatal("usage: ovirt-img compare A B")
	}

	if err := qemuimg.Compare(fs.Arg(0), fs.Arg(1)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rebaseCmd(args []string) {
	fs := flag.NewFlagSet("rebase", flag.ExitOnError)
	backing := fs.String("b", "", "new backing file")
	fs.Parse(args)

	if fs.NArg() != 1 || *backing == "" {
		log.Fatal("usage: ovirt-img rebase -b BACKING PATH")
	}

	if err := qemuimg.UnsafeRebase(fs.Arg(0), *backing); err != nil {
		log.Fatalf("%s", err)
	}
}
