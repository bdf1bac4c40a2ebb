// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package backend

import (
	"fmt"
	"net/url"
	"os"
)

// Open resolves a ticket's target URL to a Backend. "file:" URLs open a
// local path, choosing between the regular-file and block-device backend
// based on the target's file mode; "memory:" opens the in-process buffer
// shared by every request against id; "nbd:"/"nbd+unix:" dials an NBD
// export. This is the same dispatch-by-scheme the original daemon's
// backends/__init__.py performed, extended beyond the file-only variant
// it covered. size is the ticket's declared size, used by the memory
// backend, which has no on-disk size of its own to stat.
func Open(id, rawURL string, size uint64, readOnly, sparse bool) (Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file", "":
		path := u.Path
		if path == "" {
			path = rawURL
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Mode()&os.ModeDevice != 0 {
			return OpenBlock(path, readOnly)
		}
		return OpenFile(path, readOnly, sparse)
	case "memory":
		return OpenMemory(id, size, readOnly), nil
	case "nbd", "nbd+unix":
		return OpenNBD(rawURL, readOnly)
	default:
		return nil, fmt.Errorf("backend: unsupported scheme %q", u.Scheme)
	}
}
