// ovirt-imageio
// Copyright (C) 2015-2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package ticket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ovirt.org/imageio/measure"
)

func testSpec() *Spec {
	return &Spec{
		UUID:    uuid.NewString(),
		Timeout: 300,
		Ops:     []string{"read", "write"},
		Size:    1024 * 1024,
		URL:     "file:///var/tmp/disk.img",
	}
}

func newTestAuthority() *Authority {
	return New(zerolog.Nop())
}

// TestAddGetRemove adds a ticket, fetches its view, then removes it.
func TestAddGetRemove(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	view, err := a.Get(s.UUID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.UUID != s.UUID {
		t.Errorf("view.UUID = %q, want %q", view.UUID, s.UUID)
	}
	if view.Size != s.Size {
		t.Errorf("view.Size = %d, want %d", view.Size, s.Size)
	}
	if view.Active != 0 {
		t.Errorf("view.Active = %d, want 0", view.Active)
	}

	if err := a.Remove(s.UUID, time.Second); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := a.Get(s.UUID); err != ErrNotFound {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
}

func TestAddRejectsMissingFields(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	s.URL = ""
	if err := a.Add(s); err == nil {
		t.Fatal("Add with empty URL succeeded, want error")
	}
}

func TestAddConflictRejectsLiveTicket(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Add(s); err != ErrAlreadyExists {
		t.Errorf("second Add = %v, want ErrAlreadyExists", err)
	}
}

func TestAddConflictReplacesExpiredTicket(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	s.Timeout = 1
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	a.mu.RLock()
	tk := a.tickets[s.UUID]
	a.mu.RUnlock()
	tk.mu.Lock()
	tk.expires = tk.now().Add(-time.Second)
	tk.mu.Unlock()

	if err := a.Add(s); err != nil {
		t.Errorf("Add over expired ticket = %v, want nil", err)
	}
}

func TestAuthorizeForbidsUnlistedOp(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	s.Ops = []string{"read"}
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := a.Authorize(s.UUID, OpWrite, 0, 1); err != ErrForbidden {
		t.Errorf("Authorize(write) = %v, want ErrForbidden", err)
	}
}

func TestAuthorizeRejectsOutOfRange(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := a.Authorize(s.UUID, OpRead, s.Size-1, 2); err != ErrRangeNotSatisfiable {
		t.Errorf("Authorize out of range = %v, want ErrRangeNotSatisfiable", err)
	}
}

func TestAuthorizeRejectsExpired(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	a.mu.RLock()
	tk := a.tickets[s.UUID]
	a.mu.RUnlock()
	tk.mu.Lock()
	tk.expires = tk.now().Add(-time.Second)
	tk.mu.Unlock()

	if _, err := a.Authorize(s.UUID, OpRead, 0, 1); err != ErrExpired {
		t.Errorf("Authorize on expired ticket = %v, want ErrExpired", err)
	}
}

// TestReleaseIdempotent checks that releasing a handle more than once
// does not double-decrement connections or double-count the accessed
// range.
func TestReleaseIdempotent(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h, err := a.Authorize(s.UUID, OpRead, 0, 100)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	view, _ := a.Get(s.UUID)
	if view.Active != 1 {
		t.Fatalf("Active after Authorize = %d, want 1", view.Active)
	}

	r := measure.Range{Start: 0, End: 100}
	h.Release(r)
	h.Release(r)
	h.Release(r)

	view, _ = a.Get(s.UUID)
	if view.Active != 0 {
		t.Errorf("Active after repeated Release = %d, want 0", view.Active)
	}
	if view.Transferred != 100 {
		t.Errorf("Transferred after repeated Release = %d, want 100", view.Transferred)
	}
}

// TestAuthorizeMonotonicExpiry checks that each successful authorization
// extends the ticket's expiry to at least now+timeout, so expiry never
// moves backward across repeated authorizations.
func TestAuthorizeMonotonicExpiry(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	a.mu.RLock()
	tk := a.tickets[s.UUID]
	a.mu.RUnlock()

	tk.mu.Lock()
	prevExpiry := tk.expires
	tk.mu.Unlock()

	for i := 0; i < 5; i++ {
		h, err := a.Authorize(s.UUID, OpRead, 0, 1)
		if err != nil {
			t.Fatalf("Authorize #%d: %v", i, err)
		}

		tk.mu.Lock()
		if tk.expires.Before(prevExpiry) {
			t.Errorf("expiry moved backward: %v before %v", tk.expires, prevExpiry)
		}
		prevExpiry = tk.expires
		tk.mu.Unlock()

		h.Release(measure.Range{Start: 0, End: 1})
	}
}

func TestRemoveBusyTimesOut(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h, err := a.Authorize(s.UUID, OpRead, 0, 1)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	defer h.Release(measure.Range{Start: 0, End: 1})

	if err := a.Remove(s.UUID, 20*time.Millisecond); err != ErrBusy {
		t.Errorf("Remove while connection open = %v, want ErrBusy", err)
	}
}

func TestCheckCancelAfterRemove(t *testing.T) {
	a := newTestAuthority()
	defer a.Close()

	s := testSpec()
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h, err := a.Authorize(s.UUID, OpRead, 0, 1)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	go func() {
		a.Remove(s.UUID, time.Second)
	}()

	// Remove cancels immediately and then waits for connections to drain;
	// poll until the cancellation is visible to the handle.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.CheckCancel() == ErrCanceled {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := h.CheckCancel(); err != ErrCanceled {
		t.Fatalf("CheckCancel after Remove = %v, want ErrCanceled", err)
	}

	h.Release(measure.Range{Start: 0, End: 1})
}
