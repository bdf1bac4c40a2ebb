// ovirt-imageio
// Copyright (C) 2015-2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package ticket

import (
	"sync"

	"ovirt.org/imageio/measure"
)

// Handle is returned by Authority.Authorize and represents one permitted
// operation against a ticket's range. Callers must call release exactly
// once when the operation completes, but release tolerates multiple calls
// so defer-based cleanup paired with an explicit early release never
// double-counts.
type Handle struct {
	ticket *Ticket
	op     Op
	offset uint64
	length uint64

	releaseOnce sync.Once
}

// Op returns the operation this handle authorizes.
func (h *Handle) Op() Op { return h.op }

// Offset returns the start of the authorized range.
func (h *Handle) Offset() uint64 { return h.offset }

// Length returns the length of the authorized range.
func (h *Handle) Length() uint64 { return h.length }

// Release records the byte range actually accessed and decrements the
// ticket's connection count. It is idempotent: calling it more than once
// (for example from both a success path and a deferred cleanup) only
// accounts the range and decrements connections on the first call.
func (h *Handle) Release(accessed measure.Range) {
	h.releaseOnce.Do(func() {
		t := h.ticket
		t.mu.Lock()
		defer t.mu.Unlock()
		if accessed.Len() > 0 {
			t.ranges.Add(accessed)
		}
		if t.connections > 0 {
			t.connections--
		}
	})
}

// CheckCancel reports ErrCanceled if the ticket was canceled since this
// handle was authorized, letting a long-running transfer notice
// cancellation between chunks instead of only at the start.
func (h *Handle) CheckCancel() error {
	t := h.ticket
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return ErrCanceled
	}
	if t.isExpired() {
		return ErrExpired
	}
	return nil
}
