// ovirt-imageio
// Copyright (C) 2020-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package cors adds Cross-Origin Resource Sharing headers to responses for
// endpoints that may be called from the oVirt Engine webadmin, the same
// preflight contract as the original cors.allow() decorator: only reflect
// the request's preflight headers back when the browser actually asked for
// CORS, so endpoints never called cross-origin pay no extra header cost.
package cors

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
)

// Options controls which origins, headers, and methods are allowed, and
// how long a browser may cache a preflight response.
type Options struct {
	AllowOrigin  string
	AllowHeaders string
	AllowMethods string
	MaxAge       int
}

// DefaultOptions mirrors cors.allow()'s defaults: any origin, any header,
// any method, cached for 24 hours.
func DefaultOptions() Options {
	return Options{
		AllowOrigin:  "*",
		AllowHeaders: "*",
		AllowMethods: "*",
		MaxAge:       24 * 3600,
	}
}

// New returns Fiber middleware adding CORS headers to preflight and
// actual cross-origin requests.
func New(opts Options) fiber.Handler {
	maxAge := strconv.Itoa(opts.MaxAge)
	return func(c fiber.Ctx) error {
		modified := false

		if c.Get("Origin") != "" {
			c.Set("Access-Control-Allow-Origin", opts.AllowOrigin)
			modified = true
		}
		if c.Get("Access-Control-Request-Headers") != "" {
			c.Set("Access-Control-Allow-Headers", opts.AllowHeaders)
			modified = true
		}
		if c.Get("Access-Control-Request-Method") != "" {
			c.Set("Access-Control-Allow-Methods", opts.AllowMethods)
			modified = true
		}
		if modified {
			c.Set("Access-Control-Max-Age", maxAge)
		}

		return c.Next()
	}
}
