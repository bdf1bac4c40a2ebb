// ovirt-imageio
// Copyright (C) 2021-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Command ovirt-imageioctl controls a running ovirt-imageio daemon over
// its control channel: add, show, modify and delete tickets, and toggle
// CPU profiling. The Go counterpart of admin/tool.py's add-ticket /
// show-ticket / mod-ticket / del-ticket / start-profile / stop-profile
// subcommands.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ovirt.org/imageio/adminclient"
	"ovirt.org/imageio/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "add-ticket":
		err = addTicket(args)
	case "show-ticket":
		err = showTicket(args)
	case "mod-ticket":
		err = modTicket(args)
	case "del-ticket":
		err = delTicket(args)
	case "start-profile":
		err = startProfile(args)
	case "stop-profile":
		err = stopProfile(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "ovirt-imageioctl: unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ovirt-imageioctl: %s\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Control the ovirt-imageio service

Usage: ovirt-imageioctl <command> [-c conf-dir] [args]

Commands:
  add-ticket FILENAME     Add a ticket from a JSON file
  show-ticket TICKET_ID   Show a ticket status
  mod-ticket TICKET_ID --timeout N
                          Modify a ticket's timeout
  del-ticket TICKET_ID    Delete a ticket
  start-profile           Start server profiling
  stop-profile            Stop server profiling`)
}

// defaultConfDir mirrors admin.DEFAULT_CONF_DIR: the daemon.conf this tool
// reads to learn how to reach the control channel the running daemon is
// bound to. Every subcommand accepts -c/--conf-dir among its own arguments.
const defaultConfDir = "/etc/ovirt-imageio"

func loadClient(confDir string) (*adminclient.Client, error) {
	cfg := config.Default()
	confPath := confDir + "/daemon.conf"
	if _, err := os.Stat(confPath); err == nil {
		if err := config.Load(confPath, cfg); err != nil {
			return nil, err
		}
	}
	return adminclient.New(cfg, 0)
}

// splitConfDir pulls the first -c/--conf-dir DIR pair out of args, wherever
// it appears,
// returning the configuration directory and the remaining positional
// arguments.
func splitConfDir(args []string) (string, []string) {
	confDir := defaultConfDir
	for i := 0; i < len(args); i++ {
		if (args[i] == "-c" || args[i] == "--conf-dir") && i+1 < len(args) {
			confDir = args[i+1]
			return confDir, append(args[:i], args[i+2:]...)
		}
	}
	return confDir, args
}

func addTicket(args []string) error {
	confDir, rest := splitConfDir(args)
	if len(rest) != 1 {
		return fmt.Errorf("usage: add-ticket FILENAME")
	}
	data, err := os.ReadFile(rest[0])
	if err != nil {
		return err
	}
	var ticket map[string]interface{}
	if err := json.Unmarshal(data, &ticket); err != nil {
		return err
	}
	c, err := loadClient(confDir)
	if err != nil {
		return err
	}
	return c.AddTicket(ticket)
}

func showTicket(args []string) error {
	confDir, rest := splitConfDir(args)
	if len(rest) != 1 {
		return fmt.Errorf("usage: show-ticket TICKET_ID")
	}
	c, err := loadClient(confDir)
	if err != nil {
		return err
	}
	body, err := c.GetTicket(rest[0])
	if err != nil {
		return err
	}
	var pretty map[string]interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func modTicket(args []string) error {
	confDir, rest := splitConfDir(args)
	var timeout int
	var ticketID string
	for i := 0; i < len(rest); i++ {
		if rest[i] == "--timeout" && i+1 < len(rest) {
			fmt.Sscanf(rest[i+1], "%d", &timeout)
			i++
			continue
		}
		ticketID = rest[i]
	}
	if ticketID == "" {
		return fmt.Errorf("usage: mod-ticket TICKET_ID --timeout N")
	}
	c, err := loadClient(confDir)
	if err != nil {
		return err
	}
	return c.ModTicket(ticketID, timeout)
}

func delTicket(args []string) error {
	confDir, rest := splitConfDir(args)
	if len(rest) != 1 {
		return fmt.Errorf("usage: del-ticket TICKET_ID")
	}
	c, err := loadClient(confDir)
	if err != nil {
		return err
	}
	return c.DelTicket(rest[0])
}

func startProfile(args []string) error {
	confDir, _ := splitConfDir(args)
	c, err := loadClient(confDir)
	if err != nil {
		return err
	}
	return c.StartProfile()
}

func stopProfile(args []string) error {
	confDir, _ := splitConfDir(args)
	c, err := loadClient(confDir)
	if err != nil {
		return err
	}
	return c.StopProfile()
}
