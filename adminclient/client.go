// ovirt-imageio
// Copyright (C) 2021-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package adminclient is a client for the control channel, the Go
// counterpart of admin/_api.py's Client: add/get/mod/del a ticket and
// start/stop CPU profiling, talking to the daemon over the same UNIX
// socket or TCP transport the control channel listens on.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"ovirt.org/imageio/config"
)

// ServerError reports a non-success status returned by the daemon.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Code, e.Message)
}

// Client talks to a running daemon's control channel.
type Client struct {
	http *http.Client
	base string
}

// New returns a Client dialing the control channel described by cfg,
// either a UNIX socket or localhost TCP, matching admin.Client's two
// supported transports.
func New(cfg *config.Config, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	switch cfg.Control.Transport {
	case "unix":
		socket := cfg.Control.Socket
		return &Client{
			base: "http://unix",
			http: &http.Client{
				Timeout: timeout,
				Transport: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						d := net.Dialer{}
						return d.DialContext(ctx, "unix", socket)
					},
				},
			},
		}, nil
	case "tcp":
		return &Client{
			base: fmt.Sprintf("http://localhost:%d", cfg.Control.Port),
			http: &http.Client{Timeout: timeout},
		}, nil
	default:
		return nil, fmt.Errorf("adminclient: invalid control.transport %q", cfg.Control.Transport)
	}
}

// AddTicket adds ticket (typically decoded from a JSON ticket file) under
// the uuid it carries.
func (c *Client) AddTicket(ticket map[string]interface{}) error {
	uuid, _ := ticket["uuid"].(string)
	if uuid == "" {
		return fmt.Errorf("adminclient: ticket has no uuid")
	}
	body, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = c.request("PUT", "/tickets/"+uuid, body, http.StatusOK)
	return err
}

// GetTicket returns the raw JSON body describing ticket_id's current state.
func (c *Client) GetTicket(ticketID string) ([]byte, error) {
	return c.request("GET", "/tickets/"+ticketID, nil, http.StatusOK)
}

// ModTicket changes the timeout (in seconds) of an existing ticket.
func (c *Client) ModTicket(ticketID string, timeoutSeconds int) error {
	body, err := json.Marshal(map[string]int{"timeout": timeoutSeconds})
	if err != nil {
		return err
	}
	_, err = c.request("PATCH", "/tickets/"+ticketID, body, http.StatusOK)
	return err
}

// DelTicket removes a ticket.
func (c *Client) DelTicket(ticketID string) error {
	_, err := c.request("DELETE", "/tickets/"+ticketID, nil, http.StatusNoContent)
	return err
}

// StartProfile starts CPU profiling on the server.
func (c *Client) StartProfile() error {
	_, err := c.request("POST", "/profile/?run=y", nil, http.StatusOK)
	return err
}

// StopProfile stops CPU profiling on the server.
func (c *Client) StopProfile() error {
	_, err := c.request("POST", "/profile/?run=n", nil, http.StatusOK)
	return err
}

func (c *Client) request(method, path string, body []byte, want int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adminclient: %w", err)
	}
	defer res.Body.Close()

	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("adminclient: %w", err)
	}
	if res.StatusCode != want {
		return nil, &ServerError{Code: res.StatusCode, Message: string(out)}
	}
	return out, nil
}
