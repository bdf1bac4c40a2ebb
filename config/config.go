// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package config loads the daemon's INI-style configuration file the way
// original_source/daemon/ovirt_imageio/_internal/configloader.py does:
// sections map to structs, options map to exported fields, and values
// present in the file overwrite the field's default. Unlike the Python
// loader this is not reflection-driven - there is no library in the
// example corpus for typed INI decoding, so the section/option tables are
// enumerated explicitly (see DESIGN.md).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TLS holds certificate settings for the data-plane listener.
type TLS struct {
	Enable     bool   `ini:"enable"`
	KeyFile    string `ini:"key_file"`
	CertFile   string `ini:"cert_file"`
	CAFile     string `ini:"ca_file"`
	EnableTLS1 bool   `ini:"enable_tls1_1"`
}

// Images holds the data-plane (client-facing transfer) listener settings.
type Images struct {
	Host            string        `ini:"host"`
	Port            int           `ini:"port"`
	UnixSocket      string        `ini:"unix_socket"`
	PoolSizeMin     int           `ini:"pool_size_min"`
	PoolSizeMax     int           `ini:"pool_size_max"`
	BufferSize      int           `ini:"buffer_size"`
	MaxConnections  int           `ini:"max_connections"`
	KeepAliveTimeout time.Duration `ini:"keep_alive_timeout"`
}

// Control holds the control-plane (ticket administration) listener
// settings, reachable only over a local UNIX socket by default.
type Control struct {
	Transport  string `ini:"transport"`
	Socket     string `ini:"socket"`
	Port       int    `ini:"port"`
	RemoveSocket bool `ini:"remove_socket"`
}

// Logging holds process-wide logger settings.
type Logging struct {
	Level string `ini:"level"`
	File  string `ini:"logfile"`
}

// Profile holds settings for the control channel's CPU profiler.
type Profile struct {
	Path string `ini:"path"`
}

// Config is the root configuration structure, one field per INI section.
type Config struct {
	TLS          TLS
	Images       Images
	Control      Control
	Logging      Logging
	Profile      Profile
	SweepInterval time.Duration
}

// Default returns a Config populated with the same defaults the original
// daemon's config.py module ships.
func Default() *Config {
	return &Config{
		TLS: TLS{
			Enable: true,
		},
		Images: Images{
			Host:            "0.0.0.0",
			Port:            54322,
			UnixSocket:      "",
			PoolSizeMin:     4,
			PoolSizeMax:     16,
			BufferSize:      128 * 1024,
			MaxConnections:  100,
			KeepAliveTimeout: 5 * time.Second,
		},
		Control: Control{
			Transport:    "unix",
			Socket:       "/run/ovirt-imageio/sock",
			RemoveSocket: true,
		},
		Logging: Logging{
			Level: "info",
		},
		Profile: Profile{
			Path: "/run/ovirt-imageio/profile.out",
		},
		SweepInterval: 60 * time.Second,
	}
}

// Load reads an INI file at path and applies its values on top of cfg's
// current values, leaving fields absent from the file untouched - the same
// overlay semantics as configloader.load.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	sections := map[string]map[string]*string{}
	ints := map[string]map[string]*int{}
	bools := map[string]map[string]*bool{}
	durations := map[string]map[string]*time.Duration{}

	register := func(section string) {
		if sections[section] == nil {
			sections[section] = map[string]*string{}
			ints[section] = map[string]*int{}
			bools[section] = map[string]*bool{}
			durations[section] = map[string]*time.Duration{}
		}
	}

	register("tls")
	bools["tls"]["enable"] = &cfg.TLS.Enable
	sections["tls"]["key_file"] = &cfg.TLS.KeyFile
	sections["tls"]["cert_file"] = &cfg.TLS.CertFile
	sections["tls"]["ca_file"] = &cfg.TLS.CAFile
	bools["tls"]["enable_tls1_1"] = &cfg.TLS.EnableTLS1

	register("images")
	sections["images"]["host"] = &cfg.Images.Host
	ints["images"]["port"] = &cfg.Images.Port
	sections["images"]["unix_socket"] = &cfg.Images.UnixSocket
	ints["images"]["pool_size_min"] = &cfg.Images.PoolSizeMin
	ints["images"]["pool_size_max"] = &cfg.Images.PoolSizeMax
	ints["images"]["buffer_size"] = &cfg.Images.BufferSize
	ints["images"]["max_connections"] = &cfg.Images.MaxConnections
	durations["images"]["keep_alive_timeout"] = &cfg.Images.KeepAliveTimeout

	register("control")
	sections["control"]["transport"] = &cfg.Control.Transport
	sections["control"]["socket"] = &cfg.Control.Socket
	ints["control"]["port"] = &cfg.Control.Port
	bools["control"]["remove_socket"] = &cfg.Control.RemoveSocket

	register("logging")
	sections["logging"]["level"] = &cfg.Logging.Level
	sections["logging"]["logfile"] = &cfg.Logging.File

	register("daemon")
	durations["daemon"]["sweep_interval"] = &cfg.SweepInterval

	register("profile")
	sections["profile"]["path"] = &cfg.Profile.Path

	scanner := bufio.NewScanner(f)
	section := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("config: %s:%d: expected 'option = value'", path, lineNo)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if _, ok := sections[section]; !ok {
			// Unknown sections are ignored, matching configloader's
			// forgiving behavior toward engine.conf.d drop-in files.
			continue
		}

		switch {
		case sections[section][key] != nil:
			*sections[section][key] = value
		case ints[section][key] != nil:
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("config: %s:%d: invalid integer %q for %s.%s", path, lineNo, value, section, key)
			}
			*ints[section][key] = n
		case bools[section][key] != nil:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("config: %s:%d: invalid boolean %q for %s.%s", path, lineNo, value, section, key)
			}
			*bools[section][key] = b
		case durations[section][key] != nil:
			d, err := time.ParseDuration(value)
			if err != nil {
				// Accept bare seconds, like the original's int/float
				// timeout fields, in addition to Go duration syntax.
				secs, serr := strconv.ParseFloat(value, 64)
				if serr != nil {
					return fmt.Errorf("config: %s:%d: invalid duration %q for %s.%s", path, lineNo, value, section, key)
				}
				d = time.Duration(secs * float64(time.Second))
			}
			*durations[section][key] = d
		default:
			// Unknown option within a known section: ignored.
		}
	}

	return scanner.Err()
}
