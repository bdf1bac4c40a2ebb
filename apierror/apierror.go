// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package apierror translates the internal error taxonomy (ticket.Err*,
// backend.Err*) into the HTTP status codes and JSON error bodies both the
// data-plane and control-plane handlers return, so the mapping is defined
// once instead of duplicated per handler file.
package apierror

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"ovirt.org/imageio/backend"
	"ovirt.org/imageio/ticket"
)

// Status maps err to the HTTP status code the control channel should
// return. Data-plane handlers use DataPlaneStatus instead: the two
// surfaces disagree on how an unknown ticket is reported.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ticket.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ticket.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ticket.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ticket.ErrExpired), errors.Is(err, ticket.ErrCanceled):
		return http.StatusGone
	case errors.Is(err, ticket.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ticket.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, backend.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, backend.ErrClosed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DataPlaneStatus is Status with the one difference the data plane
// requires: an unknown ticket is reported as 401 (no ticket), not 404 (no
// matching route). 404 on the data plane is reserved for unmatched
// routes, which fiber reports directly without ever calling this package.
func DataPlaneStatus(err error) int {
	if errors.Is(err, ticket.ErrNotFound) {
		return http.StatusUnauthorized
	}
	return Status(err)
}

// body is the JSON shape of every error response: a numeric code, the
// standard reason phrase for that code, a human-readable explanation,
// and an optional detail, omitted when empty; Write and WriteDataPlane
// never set it.
type body struct {
	Code        int    `json:"code"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	Detail      string `json:"detail,omitempty"`
}

// Write sends err to the client as a JSON error body with the status
// Status(err) reports, for control-channel handlers.
func Write(c fiber.Ctx, err error) error {
	return write(c, Status(err), err)
}

// WriteDataPlane is Write for data-plane handlers, using DataPlaneStatus
// in place of Status.
func WriteDataPlane(c fiber.Ctx, err error) error {
	return write(c, DataPlaneStatus(err), err)
}

func write(c fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(body{
		Code:        status,
		Title:       http.StatusText(status),
		Explanation: err.Error(),
	})
}
