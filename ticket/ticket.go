// ovirt-imageio
// Copyright (C) 2015-2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package ticket implements the in-memory ticket authority: the store of
// active transfer tickets, their lifecycle, refresh, and
// per-ticket accounting of concurrent connections and transferred ranges.
package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ovirt.org/imageio/measure"
)

// Op is a permitted operation on a ticket's target.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Errors returned by Authority operations. Handlers translate these to
// HTTP status codes; never inspect the error text.
var (
	ErrNotFound           = errors.New("ticket: no such ticket")
	ErrAlreadyExists      = errors.New("ticket: already exists")
	ErrForbidden          = errors.New("ticket: operation not permitted")
	ErrExpired            = errors.New("ticket: expired")
	ErrCanceled           = errors.New("ticket: canceled")
	ErrRangeNotSatisfiable = errors.New("ticket: range not satisfiable")
	ErrBusy               = errors.New("ticket: busy")
	ErrMissingField       = errors.New("ticket: missing required field")
)

// Spec is the JSON representation of a ticket as received over the control
// channel.
type Spec struct {
	UUID     string   `json:"uuid"`
	Timeout  int      `json:"timeout"`
	Ops      []string `json:"ops"`
	Size     uint64   `json:"size"`
	URL      string   `json:"url"`
	Sparse   bool     `json:"sparse,omitempty"`
	Filename string   `json:"filename,omitempty"`
}

func (s *Spec) validate() error {
	if s.UUID == "" {
		return fmt.Errorf("%w: uuid", ErrMissingField)
	}
	if _, err := uuid.Parse(s.UUID); err != nil {
		return fmt.Errorf("ticket: invalid uuid %q: %w", s.UUID, err)
	}
	if len(s.Ops) == 0 {
		return fmt.Errorf("%w: ops", ErrMissingField)
	}
	for _, op := range s.Ops {
		if op != string(OpRead) && op != string(OpWrite) {
			return fmt.Errorf("ticket: invalid op %q", op)
		}
	}
	if s.URL == "" {
		return fmt.Errorf("%w: url", ErrMissingField)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout", ErrMissingField)
	}
	return nil
}

// Ticket is the central entity: an authorization record granting
// time-bounded, range-bounded access to one image. All mutable accounting
// fields are protected by mu; the map holding tickets is protected
// separately by the Authority's own lock.
type Ticket struct {
	mu sync.Mutex

	uuid     string
	ops      map[Op]bool
	url      string
	size     uint64
	sparse   bool
	filename string
	timeout  time.Duration

	expires     time.Time
	connections int
	canceled    bool
	ranges      *measure.List

	now func() time.Time
}

func newTicket(s *Spec, now func() time.Time) *Ticket {
	ops := make(map[Op]bool, len(s.Ops))
	for _, op := range s.Ops {
		ops[Op(op)] = true
	}
	t := &Ticket{
		uuid:     s.UUID,
		ops:      ops,
		url:      s.URL,
		size:     s.Size,
		sparse:   s.Sparse,
		filename: s.Filename,
		timeout:  time.Duration(s.Timeout) * time.Second,
		ranges:   measure.NewList(),
		now:      now,
	}
	t.expires = t.now().Add(t.timeout)
	return t
}

// UUID returns the ticket's identity.
func (t *Ticket) UUID() string { return t.uuid }

// URL returns the ticket's target image URL. Never exposed via View.
func (t *Ticket) URL() string { return t.url }

// Size returns the ticket's size ceiling in bytes.
func (t *Ticket) Size() uint64 { return t.size }

// Sparse reports whether writes may produce holes.
func (t *Ticket) Sparse() bool { return t.sparse }

// isExpired must be called with mu held.
func (t *Ticket) isExpired() bool {
	return t.now().After(t.expires)
}

// View is the redacted projection returned by Authority.Get: no URL, no
// credentials.
type View struct {
	UUID        string `json:"uuid"`
	Transferred uint64 `json:"transferred"`
	Active      int    `json:"active"`
	IdleTime    int64  `json:"idle_time"`
	Expires     int64  `json:"expires"`
	Size        uint64 `json:"size"`
	Timeout     int    `json:"timeout"`
}

func (t *Ticket) view() *View {
	now := t.now()
	idle := t.timeout - t.expires.Sub(now)
	if idle < 0 {
		idle = 0
	}
	return &View{
		UUID:        t.uuid,
		Transferred: t.ranges.Sum(),
		Active:      t.connections,
		IdleTime:    int64(idle.Seconds()),
		Expires:     t.expires.Unix(),
		Size:        t.size,
		Timeout:     int(t.timeout.Seconds()),
	}
}

// MarshalJSON lets callers json.Marshal a *Ticket directly for logging or
// the control channel GET response.
func (t *Ticket) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(t.view())
}
