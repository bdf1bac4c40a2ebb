// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package control implements the administrative control channel:
// PUT/GET/PATCH/DELETE on /tickets/{uuid}, POST /profile/ to toggle CPU
// profiling, and GET /metrics for Prometheus scraping. Unlike the
// data-plane, this channel is meant to be reachable only from the local
// host, normally over a UNIX socket.
package control

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ovirt.org/imageio/apierror"
	"ovirt.org/imageio/ticket"
)

// Handler serves the control-plane endpoints.
type Handler struct {
	authority     *ticket.Authority
	profiler      *profiler
	removeTimeout time.Duration
}

// New returns a control-plane Handler. profilePath is where a started CPU
// profile is written; removeTimeout bounds how long DELETE /tickets/{uuid}
// waits for in-flight connections to drain.
func New(a *ticket.Authority, profilePath string, removeTimeout time.Duration) *Handler {
	if removeTimeout <= 0 {
		removeTimeout = 10 * time.Second
	}
	return &Handler{
		authority:     a,
		profiler:      newProfiler(profilePath),
		removeTimeout: removeTimeout,
	}
}

// Register mounts the control routes on app, including a Prometheus
// registry scoped to this handler's ticket authority.
func (h *Handler) Register(app *fiber.App) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewTicketCollector(h.authority))

	app.Put("/tickets/:uuid", h.addTicket)
	app.Get("/tickets/:uuid", h.getTicket)
	app.Patch("/tickets/:uuid", h.modTicket)
	app.Delete("/tickets/:uuid", h.delTicket)
	app.Post("/profile/", h.profile)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
}

func (h *Handler) addTicket(c fiber.Ctx) error {
	var spec ticket.Spec
	if err := json.Unmarshal(c.Body(), &spec); err != nil {
		return apierror.Write(c, err)
	}
	if id := c.Params("uuid"); id != "" {
		spec.UUID = id
	}
	if err := h.authority.Add(&spec); err != nil {
		return apierror.Write(c, err)
	}
	return c.SendStatus(200)
}

func (h *Handler) getTicket(c fiber.Ctx) error {
	v, err := h.authority.Get(c.Params("uuid"))
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(v)
}

type modRequest struct {
	Timeout int `json:"timeout"`
}

func (h *Handler) modTicket(c fiber.Ctx) error {
	var req modRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apierror.Write(c, err)
	}
	if err := h.authority.Patch(c.Params("uuid"), req.Timeout); err != nil {
		return apierror.Write(c, err)
	}
	return c.SendStatus(200)
}

func (h *Handler) delTicket(c fiber.Ctx) error {
	if err := h.authority.Remove(c.Params("uuid"), h.removeTimeout); err != nil {
		return apierror.Write(c, err)
	}
	return c.SendStatus(204)
}

type profileRequest struct {
	Run   string `query:"run"`
	Clock string `query:"clock"`
}

// profile starts or stops CPU profiling per ?run=y|n, matching
// admin/_api.py's start_profile/stop_profile POST /profile/?run=y|n.
func (h *Handler) profile(c fiber.Ctx) error {
	run := c.Query("run")
	var err error
	switch run {
	case "y":
		err = h.profiler.start()
	case "n":
		err = h.profiler.stop()
	default:
		return c.Status(400).JSON(fiber.Map{"explanation": "run must be 'y' or 'n'"})
	}
	if err == errAlreadyRunning || err == errNotRunning {
		return c.Status(400).JSON(fiber.Map{"explanation": err.Error()})
	}
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.SendStatus(200)
}
