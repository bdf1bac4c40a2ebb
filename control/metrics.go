// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"ovirt.org/imageio/ticket"
)

// TicketCollector is a Prometheus collector reading ticket state on demand
// from the authority, the same live-collection shape as a TCPInfoCollector
// reading socket state from its tracked connections on every scrape rather
// than maintaining its own counters.
type TicketCollector struct {
	authority *ticket.Authority

	ticketCount    *prometheus.Desc
	activeConns    *prometheus.Desc
	transferred    *prometheus.Desc
	ticketSize     *prometheus.Desc
}

// NewTicketCollector returns a collector scraping a.
func NewTicketCollector(a *ticket.Authority) *TicketCollector {
	return &TicketCollector{
		authority: a,
		ticketCount: prometheus.NewDesc(
			"imageio_tickets", "Number of tickets currently stored.", nil, nil),
		activeConns: prometheus.NewDesc(
			"imageio_ticket_active_connections",
			"Number of connections currently using a ticket.",
			[]string{"uuid"}, nil),
		transferred: prometheus.NewDesc(
			"imageio_ticket_transferred_bytes",
			"Bytes transferred through a ticket so far.",
			[]string{"uuid"}, nil),
		ticketSize: prometheus.NewDesc(
			"imageio_ticket_size_bytes",
			"Size of the image a ticket grants access to.",
			[]string{"uuid"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *TicketCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.ticketCount
	descs <- c.activeConns
	descs <- c.transferred
	descs <- c.ticketSize
}

// Collect implements prometheus.Collector.
func (c *TicketCollector) Collect(metrics chan<- prometheus.Metric) {
	tickets := c.authority.Tickets()

	metrics <- prometheus.MustNewConstMetric(
		c.ticketCount, prometheus.GaugeValue, float64(len(tickets)))

	for _, t := range tickets {
		v, err := c.authority.Get(t.UUID())
		if err != nil {
			continue
		}
		metrics <- prometheus.MustNewConstMetric(
			c.activeConns, prometheus.GaugeValue, float64(v.Active), v.UUID)
		metrics <- prometheus.MustNewConstMetric(
			c.transferred, prometheus.CounterValue, float64(v.Transferred), v.UUID)
		metrics <- prometheus.MustNewConstMetric(
			c.ticketSize, prometheus.GaugeValue, float64(v.Size), v.UUID)
	}
}
