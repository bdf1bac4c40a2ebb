// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package version holds the daemon's version string, overridable at build
// time with -ldflags, matching version.py's module-level string constant.
package version

// String is reported by GET /info/ and by ovirt-imageio -version.
var String = "dev"
