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
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval matches the original daemon's default of 60 seconds
// between sweeps for expired, idle tickets.
const DefaultSweepInterval = 60 * time.Second

// Authority is the process-wide ticket store. A single reader/writer lock
// protects the map; each ticket's own mutex protects its mutable accounting
// fields, so authorize/release never need to hold the map lock for the
// duration of an I/O operation.
type Authority struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket

	log          zerolog.Logger
	now          func() time.Time
	sweepOnce    sync.Once
	stopSweeper  chan struct{}
	sweepStopped chan struct{}
}

// New creates an empty Authority and starts its background sweeper at
// DefaultSweepInterval. Use NewWithSweepInterval to override it, e.g. from
// config.Config.SweepInterval.
func New(log zerolog.Logger) *Authority {
	return NewWithSweepInterval(log, DefaultSweepInterval)
}

// NewWithSweepInterval creates an empty Authority whose background sweeper
// runs at interval instead of DefaultSweepInterval.
func NewWithSweepInterval(log zerolog.Logger, interval time.Duration) *Authority {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	a := &Authority{
		tickets:      make(map[string]*Ticket),
		log:          log.With().Str("component", "ticket").Logger(),
		now:          time.Now,
		stopSweeper:  make(chan struct{}),
		sweepStopped: make(chan struct{}),
	}
	go a.sweepLoop(interval)
	return a
}

// Close stops the background sweeper. It does not touch stored tickets.
func (a *Authority) Close() {
	a.sweepOnce.Do(func() { close(a.stopSweeper) })
	<-a.sweepStopped
}

func (a *Authority) sweepLoop(interval time.Duration) {
	defer close(a.sweepStopped)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-a.stopSweeper:
			return
		case <-t.C:
			a.sweep()
		}
	}
}

func (a *Authority) sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, tk := range a.tickets {
		tk.mu.Lock()
		expired := tk.isExpired()
		idle := tk.connections == 0
		canceled := tk.canceled
		tk.mu.Unlock()

		if idle && (expired || canceled) {
			delete(a.tickets, id)
			a.log.Info().Str("uuid", id).Msg("sweeper removed ticket")
		}
	}
}

// Add validates and stores a new ticket. If a ticket with the same UUID
// already exists, it is replaced only if canceled or expired; otherwise Add
// fails with ErrAlreadyExists.
func (a *Authority) Add(spec *Spec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.tickets[spec.UUID]; ok {
		existing.mu.Lock()
		replaceable := existing.canceled || existing.isExpired()
		existing.mu.Unlock()
		if !replaceable {
			return ErrAlreadyExists
		}
	}

	a.tickets[spec.UUID] = newTicket(spec, a.now)
	a.log.Info().Str("uuid", spec.UUID).Str("url", spec.URL).Msg("added ticket")
	return nil
}

// Get returns the redacted view of a ticket.
func (a *Authority) Get(id string) (*View, error) {
	a.mu.RLock()
	t, ok := a.tickets[id]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view(), nil
}

// Patch refreshes a ticket's timeout and recomputes its expiration.
func (a *Authority) Patch(id string, timeoutSeconds int) error {
	a.mu.RLock()
	t, ok := a.tickets[id]
	a.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = time.Duration(timeoutSeconds) * time.Second
	t.expires = t.now().Add(t.timeout)
	a.log.Info().Str("uuid", id).Int("timeout", timeoutSeconds).Msg("modified ticket")
	return nil
}

// Remove cancels a ticket at once, then waits for its connections to drain
// to zero, up to timeout, and deletes it. If connections remain after
// timeout, Remove returns ErrBusy and the ticket stays stored, canceled.
func (a *Authority) Remove(id string, timeout time.Duration) error {
	a.mu.RLock()
	t, ok := a.tickets[id]
	a.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()

	deadline := a.now().Add(timeout)
	for {
		t.mu.Lock()
		idle := t.connections == 0
		t.mu.Unlock()
		if idle {
			break
		}
		if a.now().After(deadline) {
			return ErrBusy
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.mu.Lock()
	delete(a.tickets, id)
	a.mu.Unlock()

	a.log.Info().Str("uuid", id).Msg("removed ticket")
	return nil
}

// Authorize checks that op is permitted on ticket id for [offset, offset+
// length), that the ticket is neither expired nor canceled, extends its
// expiration, increments its connection count, and returns a Handle bound
// to the caller. Errors are ErrNotFound, ErrForbidden, ErrExpired,
// ErrCanceled, or ErrRangeNotSatisfiable.
func (a *Authority) Authorize(id string, op Op, offset, length uint64) (*Handle, error) {
	a.mu.RLock()
	t, ok := a.tickets[id]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled {
		return nil, ErrCanceled
	}
	if t.isExpired() {
		return nil, ErrExpired
	}
	if !t.ops[op] {
		return nil, ErrForbidden
	}
	if offset+length > t.size {
		return nil, ErrRangeNotSatisfiable
	}

	t.expires = t.now().Add(t.timeout)
	t.connections++

	return &Handle{ticket: t, op: op, offset: offset, length: length}, nil
}

// TicketURL returns the target URL of ticket id, or "" if it does not
// exist. Unlike Get/View, this is not redacted: only data-plane handlers
// that need to open the backend should call it.
func (a *Authority) TicketURL(id string) string {
	a.mu.RLock()
	t, ok := a.tickets[id]
	a.mu.RUnlock()
	if !ok {
		return ""
	}
	return t.URL()
}

// Tickets returns a snapshot of all stored tickets, mainly for
// diagnostics and metrics collection.
func (a *Authority) Tickets() []*Ticket {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Ticket, 0, len(a.tickets))
	for _, t := range a.tickets {
		out = append(out, t)
	}
	return out
}
