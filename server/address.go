// ovirt-imageio
// Copyright (C) 2019-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package server

import (
	"net"
	"strconv"
)

// Address formats a bind address for host:port, quoting IPv6 literals the
// way ipv6.py's quote_address does - net.JoinHostPort already applies the
// same bracketing rule, so this is a thin typed wrapper rather than a
// reimplementation.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
