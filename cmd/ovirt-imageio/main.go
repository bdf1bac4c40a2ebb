// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ovirt.org/imageio/config"
	"ovirt.org/imageio/logging"
	"ovirt.org/imageio/server"
	"ovirt.org/imageio/ticket"
	"ovirt.org/imageio/version"
)

func main() {
	confPath := flag.String("conf", "/etc/ovirt-imageio/daemon.conf", "configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ovirt-imageio %s\n", version.String)
		os.Exit(0)
	}

	cfg := config.Default()
	if _, err := os.Stat(*confPath); err == nil {
		if err := config.Load(*confPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "ovirt-imageio: %s\n", err)
			os.Exit(1)
		}
	}

	var logOut *os.File
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ovirt-imageio: opening log file: %s\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	if logOut != nil {
		logging.Init(cfg.Logging.Level, logOut)
	} else {
		logging.Init(cfg.Logging.Level, nil)
	}
	log := logging.For("main")
	log.Info().Str("version", version.String).Msg("starting")

	authority := ticket.NewWithSweepInterval(logging.For("ticket"), cfg.SweepInterval)
	defer authority.Close()

	srv := server.New(cfg, authority)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("shutdown complete")
}
