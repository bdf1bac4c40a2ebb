// ovirt-imageio
// Copyright (C) 2021 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation; either version 2 of the
// License, or (at your option) any later version.

package nbd

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
)

// fakeServer implements just enough of the NBD fixed-newstyle handshake,
// plus NBD_CMD_READ/WRITE/FLUSH and structured NBD_CMD_BLOCK_STATUS replies,
// to drive the client through real wire bytes in tests.
type fakeServer struct {
	conn   net.Conn
	size   uint64
	data   []byte
	blocks []rawExtent // fixed block-status script for this test
}

func newFakePair(t *testing.T, size uint64, script []rawExtent) (*Client, func()) {
	t.Helper()

	server, client := net.Pipe()
	fs := &fakeServer{conn: server, size: size, data: make([]byte, size), blocks: script}

	go fs.run()

	c, err := newClientOverConn(client, "test")
	if err != nil {
		t.Fatalf("handshake failed: %s", err)
	}
	return c, func() { c.Close() }
}

// newClientOverConn lets tests inject an already-connected net.Conn (the
// exported Dial/DialUnix only take addresses).
func newClientOverConn(conn net.Conn, export string) (*Client, error) {
	return newClient(conn, export)
}

func (fs *fakeServer) run() {
	defer fs.conn.Close()

	w := fs.conn

	// Greeting.
	binary.Write(w, binary.BigEndian, nbdMagic)
	binary.Write(w, binary.BigEndian, iHaveOpt)
	binary.Write(w, binary.BigEndian, flagFixedNewstyle|flagNoZeroes)

	var clientFlags uint32
	if err := binary.Read(w, binary.BigEndian, &clientFlags); err != nil {
		return
	}

	for {
		var magic uint64
		if err := binary.Read(w, binary.BigEndian, &magic); err != nil {
			return
		}
		var opt uint32
		binary.Read(w, binary.BigEndian, &opt)
		var length uint32
		binary.Read(w, binary.BigEndian, &length)
		data := make([]byte, length)
		if length > 0 {
			io.ReadFull(w, data)
		}

		switch opt {
		case optStructuredReply:
			fs.sendOptReply(opt, repAck, nil)
		case optSetMetaContext:
			ctxReply := make([]byte, 4)
			binary.BigEndian.PutUint32(ctxReply, 1)
			fs.sendOptReply(opt, repMetaContext, ctxReply)
			fs.sendOptReply(opt, repAck, nil)
		case optGo:
			info := make([]byte, 0, 12)
			info = binary.BigEndian.AppendUint16(info, infoExport)
			info = binary.BigEndian.AppendUint64(info, fs.size)
			info = binary.BigEndian.AppendUint16(info, flagHasFlags|flagSendFlush|flagSendTrim|flagSendWriteZeroes|flagSendBlockStatus)
			fs.sendOptReply(opt, repInfo, info)
			fs.sendOptReply(opt, repAck, nil)
			fs.serveRequests()
			return
		default:
			fs.sendOptReply(opt, repAck, nil)
		}
	}
}

func (fs *fakeServer) sendOptReply(opt, replyType uint32, data []byte) {
	binary.Write(fs.conn, binary.BigEndian, replyMagicOpt())
	binary.Write(fs.conn, binary.BigEndian, opt)
	binary.Write(fs.conn, binary.BigEndian, replyType)
	binary.Write(fs.conn, binary.BigEndian, uint32(len(data)))
	if len(data) > 0 {
		fs.conn.Write(data)
	}
}

func (fs *fakeServer) serveRequests() {
	defer fs.conn.Close()
	for {
		hdr := make([]byte, 28)
		if _, err := io.ReadFull(fs.conn, hdr); err != nil {
			return
		}
		cmd := binary.BigEndian.Uint16(hdr[6:8])
		cookie := binary.BigEndian.Uint64(hdr[8:16])
		offset := binary.BigEndian.Uint64(hdr[16:24])
		length := binary.BigEndian.Uint32(hdr[24:28])

		switch cmd {
		case cmdDisc:
			return
		case cmdRead:
			fs.simpleReply(cookie, errOK)
			fs.conn.Write(fs.data[offset : offset+uint64(length)])
		case cmdWrite:
			buf := make([]byte, length)
			io.ReadFull(fs.conn, buf)
			copy(fs.data[offset:], buf)
			fs.simpleReply(cookie, errOK)
		case cmdFlush, cmdTrim, cmdWriteZeroes:
			fs.simpleReply(cookie, errOK)
		case cmdBlockStatus:
			fs.blockStatusReply(cookie, offset, length)
		}
	}
}

func (fs *fakeServer) simpleReply(cookie uint64, errCode uint32) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], replyMagic)
	binary.BigEndian.PutUint32(buf[4:8], errCode)
	binary.BigEndian.PutUint64(buf[8:16], cookie)
	fs.conn.Write(buf)
}

// blockStatusReply replays the fixed fs.blocks script as a single
// structured reply, simulating a "long reply" server: it may report more
// than the client asked for, and the client must clip.
func (fs *fakeServer) blockStatusReply(cookie, offset uint64, length uint32) {
	body := make([]byte, 0, 4+8*len(fs.blocks))
	body = binary.BigEndian.AppendUint32(body, 1) // context id
	for _, e := range fs.blocks {
		body = binary.BigEndian.AppendUint32(body, e.Length)
		body = binary.BigEndian.AppendUint32(body, e.Flags)
	}

	hdr := make([]byte, 20)
	binary.BigEndian.PutUint32(hdr[0:4], structuredMagic)
	binary.BigEndian.PutUint16(hdr[4:6], structuredFlagDone)
	binary.BigEndian.PutUint16(hdr[6:8], structuredTypeBlockStatus)
	binary.BigEndian.PutUint64(hdr[8:16], cookie)
	binary.BigEndian.PutUint32(hdr[16:20], uint32(len(body)))

	fs.conn.Write(hdr)
	fs.conn.Write(body)
}

func TestHandshakeNegotiatesSize(t *testing.T) {
	c, closeFn := newFakePair(t, 96*1024*1024, nil)
	defer closeFn()

	if c.Size() != 96*1024*1024 {
		t.Errorf("Size() = %d, want %d", c.Size(), 96*1024*1024)
	}
	if !c.SupportsFlush() || !c.SupportsTrim() || !c.SupportsWriteZeroes() {
		t.Errorf("expected flush/trim/write-zeroes flags to be negotiated")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	c, closeFn := newFakePair(t, 64*1024, nil)
	defer closeFn()

	want := []byte("hello, world")
	if _, err := c.WriteAt(want, 10); err != nil {
		t.Fatalf("WriteAt failed: %s", err)
	}

	got := make([]byte, len(want))
	if _, err := c.ReadAt(got, 10); err != nil {
		t.Fatalf("ReadAt failed: %s", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadAt = %q, want %q", got, want)
	}
}

// TestExtentsMerging checks that a server replying with [64MiB data,
// 16MiB zero, 16MiB zero, 8MiB data] for a 96 MiB range gets normalized
// to two merged, clipped extents.
func TestExtentsMerging(t *testing.T) {
	const MiB = 1024 * 1024

	script := []rawExtent{
		{Length: 64 * MiB, Flags: 0},
		{Length: 16 * MiB, Flags: stateZero},
		{Length: 16 * MiB, Flags: stateZero},
		{Length: 8 * MiB, Flags: 0},
	}

	c, closeFn := newFakePair(t, 96*MiB, script)
	defer closeFn()

	extents, err := c.Extents(0, 96*MiB)
	if err != nil {
		t.Fatalf("Extents failed: %s", err)
	}

	if len(extents) != 2 {
		t.Fatalf("got %d extents, want 2: %+v", len(extents), extents)
	}
	if extents[0].Start != 0 || extents[0].Length != 64*MiB || extents[0].Zero {
		t.Errorf("extent[0] = %+v, want {0 %d false}", extents[0], 64*MiB)
	}
	if extents[1].Start != 64*MiB || extents[1].Length != 32*MiB || !extents[1].Zero {
		t.Errorf("extent[1] = %+v, want {%d %d true}", extents[1], 64*MiB, 32*MiB)
	}
}

func TestExtentsCoverRangeExactly(t *testing.T) {
	const MiB = 1024 * 1024
	script := []rawExtent{
		{Length: 10 * MiB, Flags: stateZero},
		{Length: 5 * MiB, Flags: 0},
	}
	c, closeFn := newFakePair(t, 20*MiB, script)
	defer closeFn()

	extents, err := c.Extents(0, 0)
	if err != nil {
		t.Fatalf("Extents failed: %s", err)
	}

	var covered uint64
	for i, e := range extents {
		if e.Start != covered {
			t.Fatalf("extent[%d] starts at %d, want %d (gap/overlap)", i, e.Start, covered)
		}
		covered += e.Length
		if i > 0 && extents[i-1].Zero == e.Zero {
			t.Fatalf("consecutive extents %d,%d share zero=%v, should have merged", i-1, i, e.Zero)
		}
	}
	if covered != 20*MiB {
		t.Fatalf("extents cover %d bytes, want %d", covered, 20*MiB)
	}
}
