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
	"runtime/pprof"
)

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")

func main() {
	flag.Parse()

	if len(flag.Args()) < 1 {
		usage()
		os.Exit(1)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	switch args[0] {
	case "map":
		if len(args) != 2 {
			log.Fatal("usage: ovirt-img map URL")
		}
		mapURL(args[1])
	default:
		runImageCmd(args[0], args[1:])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: ovirt-img [-cpuprofile FILE] COMMAND ARGS

Commands:
  map URL                            Print extents reported by URL
  create [-f FORMAT] [-b BACKING] [-s SIZE] PATH
                                     Create a new image
  convert [-f SRC_FORMAT] [-O DST_FORMAT] SRC DST
                                     Convert an image to another format
  compare A B                        Compare the content of two images
  rebase -b BACKING PATH             Unsafely rebase PATH onto BACKING`)
}

// runImageCmd dispatches create/convert/compare/rebase, each with its own
// flag.FlagSet so their options don't collide with the top-level flags.
func runImageCmd(name string, args []string) {
	switch name {
	case "create":
		createCmd(args)
	case "convert":
		convertCmd(args)
	case "compare":
		compareCmd(args)
	case "rebase":
		rebaseCmd(args)
	default:
		usage()
		os.Exit(1)
	}
}
