// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
)

// ErrRelayServerStopped is returned when the embedded relay server dies
// underneath the process.
var ErrRelayServerStopped = errors.New("embedded relay server stopped")

// RelayServer matches *upstream.EmbeddedServer.
type RelayServer interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// RelayServerService supervises an already started embedded NATS server.
//
// The server is started before the tree because the relay bus connects to
// it during wiring. The service:
//  1. Polls IsRunning until the context is canceled
//  2. Shuts the server down with a fresh timeout context on cancellation
//
// An embedded server cannot be restarted in place, so a server that stops
// on its own terminates the supervisor tree.
type RelayServerService struct {
	server          RelayServer
	shutdownTimeout time.Duration
	checkInterval   time.Duration
	name            string
}

// NewRelayServerService creates a relay server service with a 10s shutdown
// timeout.
func NewRelayServerService(server RelayServer) *RelayServerService {
	return NewRelayServerServiceWithTimeout(server, 10*time.Second)
}

// NewRelayServerServiceWithTimeout creates a relay server service with a
// custom shutdown timeout.
func NewRelayServerServiceWithTimeout(server RelayServer, shutdownTimeout time.Duration) *RelayServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &RelayServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   5 * time.Second,
		name:            "relay-server",
	}
}

// Serve implements suture.Service.
func (s *RelayServerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		if !s.server.IsRunning() {
			return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, ErrRelayServerStopped)
		}
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("relay server shutdown failed: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (s *RelayServerService) String() string {
	return s.name
}
