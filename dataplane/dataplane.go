// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package dataplane implements the client-facing HTTP transfer endpoints:
// GET/PUT/PATCH/OPTIONS on /images/{ticket}, GET on /images/{ticket}/extents,
// and GET /info/. Every handler resolves
// the ticket, authorizes the operation against the requested range, drives
// an operation.Operation against the ticket's backend, and releases the
// handle when done - success or error. GET streams its body after the
// handler returns, so it releases the handle once the body is written.
package dataplane

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"ovirt.org/imageio"
	"ovirt.org/imageio/apierror"
	"ovirt.org/imageio/backend"
	"ovirt.org/imageio/cors"
	"ovirt.org/imageio/measure"
	"ovirt.org/imageio/operation"
	"ovirt.org/imageio/ticket"
	"ovirt.org/imageio/version"
)

// Handler serves the data-plane endpoints against a shared ticket
// authority.
type Handler struct {
	authority  *ticket.Authority
	bufferSize int
}

// New returns a data-plane Handler. bufferSize <= 0 selects
// operation.DefaultBufferSize.
func New(a *ticket.Authority, bufferSize int) *Handler {
	return &Handler{authority: a, bufferSize: bufferSize}
}

// Register mounts the data-plane routes on app.
func (h *Handler) Register(app *fiber.App) {
	c := cors.New(cors.DefaultOptions())
	app.Get("/info/", c, h.info)
	app.Options("/images/:ticket", c, h.options)
	app.Get("/images/:ticket", c, h.get)
	app.Put("/images/:ticket", c, h.put)
	app.Patch("/images/:ticket", c, h.patch)
	app.Get("/images/:ticket/extents", c, h.extents)
}

func (h *Handler) info(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": version.String})
}

// options reports the ticket's size and the features this daemon supports
// for it, the preflight a client uses before attempting a transfer.
func (h *Handler) options(c fiber.Ctx) error {
	id := c.Params("ticket")
	v, err := h.authority.Get(id)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}
	return c.JSON(fiber.Map{
		"size":     v.Size,
		"features": []string{"zero", "flush", "extents"},
	})
}

type byteRange struct {
	offset, length int64
}

// parseRange parses a single-range "bytes=a-b" Range header against size,
// validating the contract a <= b < size. A missing header means "the
// whole resource".
func parseRange(header string, size uint64) (byteRange, error) {
	if header == "" {
		return byteRange{0, int64(size)}, nil
	}
	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, fmt.Errorf("invalid range %q", header)
	}
	a, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("invalid range %q", header)
	}
	b, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("invalid range %q", header)
	}
	if a > b || b >= size {
		return byteRange{}, ticket.ErrRangeNotSatisfiable
	}
	return byteRange{int64(a), int64(b-a) + 1}, nil
}

// parseContentRange parses "bytes a-b/size" as sent by a PUT request body.
func parseContentRange(header string, ticketSize uint64) (byteRange, error) {
	spec := strings.TrimPrefix(header, "bytes ")
	rangePart, sizePart, ok := strings.Cut(spec, "/")
	if !ok {
		return byteRange{}, fmt.Errorf("invalid content-range %q", header)
	}
	a, b, ok := strings.Cut(rangePart, "-")
	if !ok {
		return byteRange{}, fmt.Errorf("invalid content-range %q", header)
	}
	start, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("invalid content-range %q", header)
	}
	end, err := strconv.ParseUint(b, 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("invalid content-range %q", header)
	}
	if sizePart != "*" {
		total, err := strconv.ParseUint(sizePart, 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("invalid content-range %q", header)
		}
		if total != ticketSize {
			return byteRange{}, ticket.ErrRangeNotSatisfiable
		}
	}
	if start > end || end >= ticketSize {
		return byteRange{}, ticket.ErrRangeNotSatisfiable
	}
	return byteRange{int64(start), int64(end-start) + 1}, nil
}

// ticketURL is split out so it is the single place that reaches past the
// redacted View back to the ticket's URL; View never exposes it.
func (h *Handler) ticketURL(id string) string {
	return h.authority.TicketURL(id)
}

// zeroRange is the accessed range passed to Handle.Release when a handler
// fails before transferring any bytes.
func zeroRange() measure.Range {
	return measure.Range{}
}

func (h *Handler) get(c fiber.Ctx) error {
	id := c.Params("ticket")

	v, err := h.authority.Get(id)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	rangeHeader := c.Get("Range")
	rng, err := parseRange(rangeHeader, v.Size)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	hnd, err := h.authority.Authorize(id, ticket.OpRead, uint64(rng.offset), uint64(rng.length))
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	b, err := backend.Open(id, h.ticketURL(id), v.Size, true, true)
	if err != nil {
		hnd.Release(zeroRange())
		return apierror.WriteDataPlane(c, err)
	}

	op := operation.New(hnd, b, rng.offset, rng.length, h.bufferSize)

	c.Set("Content-Length", strconv.FormatInt(rng.length, 10))
	status := 200
	if rangeHeader != "" {
		status = 206
	}
	c.Status(status)

	// The stream writer runs after this handler has returned, so it owns
	// the operation and the backend and releases both when it is done.
	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer b.Close()
		defer op.Release()
		op.Read(w)
		w.Flush()
	})
	return nil
}

func (h *Handler) put(c fiber.Ctx) error {
	id := c.Params("ticket")

	v, err := h.authority.Get(id)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	var rng byteRange
	if cr := c.Get("Content-Range"); cr != "" {
		rng, err = parseContentRange(cr, v.Size)
	} else {
		length := c.Request().Header.ContentLength()
		rng = byteRange{0, int64(length)}
		if uint64(rng.length) > v.Size {
			err = ticket.ErrRangeNotSatisfiable
		}
	}
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	hnd, err := h.authority.Authorize(id, ticket.OpWrite, uint64(rng.offset), uint64(rng.length))
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	b, err := backend.Open(id, h.ticketURL(id), v.Size, false, true)
	if err != nil {
		hnd.Release(zeroRange())
		return apierror.WriteDataPlane(c, err)
	}
	defer b.Close()

	op := operation.New(hnd, b, rng.offset, rng.length, h.bufferSize)
	defer op.Release()

	if _, err := op.Write(bytes.NewReader(c.Body())); err != nil {
		return apierror.WriteDataPlane(c, err)
	}
	return c.SendStatus(200)
}

type patchRequest struct {
	Op     string `json:"op"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	Flush  bool   `json:"flush,omitempty"`
}

func (h *Handler) patch(c fiber.Ctx) error {
	id := c.Params("ticket")

	var req patchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apierror.WriteDataPlane(c, fmt.Errorf("%w: %s", ticket.ErrMissingField, err))
	}

	v, err := h.authority.Get(id)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	switch req.Op {
	case "zero":
		if uint64(req.Offset+req.Size) > v.Size {
			return apierror.WriteDataPlane(c, ticket.ErrRangeNotSatisfiable)
		}
		hnd, err := h.authority.Authorize(id, ticket.OpWrite, uint64(req.Offset), uint64(req.Size))
		if err != nil {
			return apierror.WriteDataPlane(c, err)
		}
		b, err := backend.Open(id, h.ticketURL(id), v.Size, false, true)
		if err != nil {
			hnd.Release(zeroRange())
			return apierror.WriteDataPlane(c, err)
		}
		defer b.Close()

		op := operation.New(hnd, b, req.Offset, req.Size, h.bufferSize)
		defer op.Release()
		if err := op.Zero(); err != nil {
			return apierror.WriteDataPlane(c, err)
		}
		if req.Flush {
			if err := op.Flush(); err != nil {
				return apierror.WriteDataPlane(c, err)
			}
		}
		return c.SendStatus(200)

	case "flush":
		hnd, err := h.authority.Authorize(id, ticket.OpWrite, 0, 0)
		if err != nil {
			return apierror.WriteDataPlane(c, err)
		}
		b, err := backend.Open(id, h.ticketURL(id), v.Size, false, true)
		if err != nil {
			hnd.Release(zeroRange())
			return apierror.WriteDataPlane(c, err)
		}
		defer b.Close()

		op := operation.New(hnd, b, 0, 0, h.bufferSize)
		defer op.Release()
		if err := op.Flush(); err != nil {
			return apierror.WriteDataPlane(c, err)
		}
		return c.SendStatus(200)

	default:
		return apierror.WriteDataPlane(c, fmt.Errorf("%w: op", ticket.ErrMissingField))
	}
}

func (h *Handler) extents(c fiber.Ctx) error {
	id := c.Params("ticket")

	v, err := h.authority.Get(id)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}

	hnd, err := h.authority.Authorize(id, ticket.OpRead, 0, 0)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}
	defer hnd.Release(zeroRange())

	b, err := backend.Open(id, h.ticketURL(id), v.Size, true, true)
	if err != nil {
		return apierror.WriteDataPlane(c, err)
	}
	defer b.Close()

	extents, err := b.Extents(0, v.Size)
	if errors.Is(err, backend.ErrNotSupported) {
		extents = []*imageio.Extent{imageio.NewExtent(0, v.Size, false)}
	} else if err != nil {
		return apierror.WriteDataPlane(c, err)
	}
	return c.JSON(extents)
}
