// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package operation

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ovirt.org/imageio/backend"
	"ovirt.org/imageio/ticket"
)

func newHandle(t *testing.T, a *ticket.Authority, op ticket.Op, size uint64) *ticket.Handle {
	t.Helper()
	s := &ticket.Spec{
		UUID:    uuid.NewString(),
		Timeout: 300,
		Ops:     []string{string(op)},
		Size:    size,
		URL:     "file:///tmp/disk.img",
	}
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := a.Authorize(s.UUID, op, 0, size)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	return h
}

func TestOperationWriteThenRead(t *testing.T) {
	a := ticket.New(zerolog.Nop())
	defer a.Close()

	b := backend.NewMemory(1024, false)
	defer b.Close()

	wh := newHandle(t, a, ticket.OpWrite, 1024)
	data := bytes.Repeat([]byte("x"), 100)
	wop := New(wh, b, 0, int64(len(data)), 16)
	n, err := wop.Write(bytes.NewReader(data))
	wop.Release()
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("Write() = %d, want %d", n, len(data))
	}

	rh := newHandle(t, a, ticket.OpRead, 1024)
	rop := New(rh, b, 0, int64(len(data)), 16)
	var out bytes.Buffer
	n, err = rop.Read(&out)
	rop.Release()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("Read() = %d, want %d", n, len(data))
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Errorf("Read content mismatch")
	}
}

func TestOperationZero(t *testing.T) {
	a := ticket.New(zerolog.Nop())
	defer a.Close()

	b := backend.NewMemory(1024, false)
	defer b.Close()
	b.WriteAt(bytes.Repeat([]byte{0xff}, 1024), 0)

	h := newHandle(t, a, ticket.OpWrite, 1024)
	op := New(h, b, 100, 50, 16)
	if err := op.Zero(); err != nil {
		t.Fatalf("Zero: %v", err)
	}
	op.Release()

	content := b.Bytes()
	for i := 100; i < 150; i++ {
		if content[i] != 0 {
			t.Fatalf("byte %d = %x, want 0", i, content[i])
		}
	}
	if content[99] != 0xff || content[150] != 0xff {
		t.Fatalf("Zero wrote outside its range")
	}
}

func TestOperationStopsOnCancel(t *testing.T) {
	a := ticket.New(zerolog.Nop())
	defer a.Close()

	b := backend.NewMemory(1024, false)
	defer b.Close()

	s := &ticket.Spec{
		UUID:    uuid.NewString(),
		Timeout: 300,
		Ops:     []string{"write"},
		Size:    1024,
		URL:     "file:///tmp/disk.img",
	}
	if err := a.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := a.Authorize(s.UUID, ticket.OpWrite, 0, 1024)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	go a.Remove(s.UUID, time.Second)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.CheckCancel() == nil {
		time.Sleep(time.Millisecond)
	}

	data := bytes.Repeat([]byte("y"), 1024)
	op := New(h, b, 0, int64(len(data)), 16)
	_, err = op.Write(bytes.NewReader(data))
	op.Release()
	if err != ticket.ErrCanceled {
		t.Fatalf("Write after cancel = %v, want ErrCanceled", err)
	}
}
