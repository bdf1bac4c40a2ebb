// ovirt-imageio
// Copyright (C) 2015-2022 Red Hat, Inc.
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.

// Package server assembles the data-plane and control-plane listeners into
// one daemon process: TLS termination for the client-facing data-plane, a
// UNIX or TCP control-plane listener, and coordinated graceful shutdown of
// both.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"

	"github.com/gofiber/fiber/v3"
	recovermiddleware "github.com/gofiber/fiber/v3/middleware/recover"

	"ovirt.org/imageio/config"
	"ovirt.org/imageio/control"
	"ovirt.org/imageio/dataplane"
	"ovirt.org/imageio/logging"
	"ovirt.org/imageio/ticket"
)

// Server owns the data-plane and control-plane Fiber apps and their
// listeners.
type Server struct {
	cfg       *config.Config
	authority *ticket.Authority

	images  *fiber.App
	control *fiber.App
}

// New builds a Server wired to authority, but does not start listening.
func New(cfg *config.Config, authority *ticket.Authority) *Server {
	s := &Server{cfg: cfg, authority: authority}

	s.images = fiber.New(fiber.Config{
		ServerHeader:          "ovirt-imageio",
		DisableStartupMessage: true,
	})
	s.images.Use(recovermiddleware.New())
	dataplane.New(authority, cfg.Images.BufferSize).Register(s.images)

	s.control = fiber.New(fiber.Config{
		ServerHeader:          "ovirt-imageio-control",
		DisableStartupMessage: true,
	})
	s.control.Use(recovermiddleware.New())
	control.New(authority, cfg.Profile.Path, 0).Register(s.control)

	return s
}

// Run starts both listeners and blocks until ctx is canceled, then shuts
// both down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	imagesListener, err := s.imagesListener()
	if err != nil {
		return fmt.Errorf("server: images listener: %w", err)
	}

	controlListener, err := s.controlListener()
	if err != nil {
		return fmt.Errorf("server: control listener: %w", err)
	}

	go func() {
		logging.For("server").Info().Str("addr", imagesListener.Addr().String()).
			Msg("data-plane listening")
		errCh <- s.images.Listener(imagesListener)
	}()
	go func() {
		logging.For("server").Info().Str("addr", controlListener.Addr().String()).
			Msg("control-plane listening")
		errCh <- s.control.Listener(controlListener)
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		<-errCh
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		s.shutdown()
		<-errCh
		return err
	}
}

func (s *Server) shutdown() {
	_ = s.images.Shutdown()
	_ = s.control.Shutdown()
}

func (s *Server) imagesListener() (net.Listener, error) {
	addr := Address(s.cfg.Images.Host, s.cfg.Images.Port)
	if s.cfg.Images.UnixSocket != "" {
		return net.Listen("unix", s.cfg.Images.UnixSocket)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if !s.cfg.TLS.Enable {
		return ln, nil
	}

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		ln.Close()
		return nil, err
	}
	return tls.NewListener(ln, tlsConfig), nil
}

func (s *Server) controlListener() (net.Listener, error) {
	switch s.cfg.Control.Transport {
	case "unix":
		if s.cfg.Control.RemoveSocket {
			os.Remove(s.cfg.Control.Socket)
		}
		return net.Listen("unix", s.cfg.Control.Socket)
	case "tcp":
		return net.Listen("tcp", Address("localhost", s.cfg.Control.Port))
	default:
		return nil, fmt.Errorf("server: invalid control.transport %q", s.cfg.Control.Transport)
	}
}

// buildTLSConfig loads the server certificate and sets the minimum TLS
// version, defaulting to TLS 1.2 and only dropping to 1.1 when the
// deployment explicitly opts in for legacy clients.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("server: loading TLS certificate: %w", err)
	}

	minVersion := uint16(tls.VersionTLS12)
	if s.cfg.TLS.EnableTLS1 {
		minVersion = tls.VersionTLS11
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}, nil
}
