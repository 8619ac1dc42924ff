// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPServer matches the *http.Server lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service.
//
// It translates the blocking ListenAndServe pattern into suture's Serve:
//
//  1. Starts the server in a goroutine
//  2. Waits for either context cancellation or server error
//  3. On shutdown, calls Shutdown with the configured timeout
//
// Upgraded WebSocket connections are hijacked and not tracked by
// http.Server.Shutdown; the gateway closes them itself.
type HTTPServerService struct {
	server          HTTPServer
	listener        net.Listener
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService creates a service that binds the server's Addr on
// every start.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// NewHTTPServerServiceWithListener serves on a listener bound by the caller,
// so that bind errors surface before the supervisor tree starts. The
// listener is consumed by the first Serve; a restart binds Addr again.
func NewHTTPServerServiceWithListener(server HTTPServer, ln net.Listener, shutdownTimeout time.Duration) *HTTPServerService {
	svc := NewHTTPServerService(server, shutdownTimeout)
	svc.listener = ln
	return svc
}

// Serve implements suture.Service.
//
// Returns ctx.Err() on graceful shutdown. http.ErrServerClosed is expected
// during shutdown and is not reported as a failure.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln := h.listener
	h.listener = nil

	errCh := make(chan error, 1)
	go func() {
		var err error
		if ln != nil {
			err = h.server.Serve(ln)
		} else {
			err = h.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already canceled; shut down on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture logs.
func (h *HTTPServerService) String() string {
	return h.name
}
