// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockRelayServer simulates *upstream.EmbeddedServer.
type mockRelayServer struct {
	running     atomic.Bool
	shutdowns   atomic.Int32
	shutdownErr error
}

func newMockRelayServer() *mockRelayServer {
	m := &mockRelayServer{}
	m.running.Store(true)
	return m
}

func (m *mockRelayServer) Shutdown(ctx context.Context) error {
	m.shutdowns.Add(1)
	m.running.Store(false)
	return m.shutdownErr
}

func (m *mockRelayServer) IsRunning() bool {
	return m.running.Load()
}

func TestRelayServerService(t *testing.T) {
	t.Run("implements suture.Service interface", func(t *testing.T) {
		var _ suture.Service = (*RelayServerService)(nil)
	})

	t.Run("shuts the server down on cancellation", func(t *testing.T) {
		srv := newMockRelayServer()
		svc := NewRelayServerService(srv)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := svc.Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if srv.shutdowns.Load() != 1 {
			t.Errorf("expected 1 shutdown, got %d", srv.shutdowns.Load())
		}
	})

	t.Run("returns shutdown errors", func(t *testing.T) {
		srv := newMockRelayServer()
		srv.shutdownErr = errors.New("shutdown timed out")
		svc := NewRelayServerService(srv)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := svc.Serve(ctx); !errors.Is(err, srv.shutdownErr) {
			t.Errorf("expected shutdown error, got %v", err)
		}
	})

	t.Run("terminates the tree when the server dies", func(t *testing.T) {
		srv := newMockRelayServer()
		svc := NewRelayServerService(srv)
		svc.checkInterval = 10 * time.Millisecond

		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(context.Background()) }()

		time.Sleep(20 * time.Millisecond)
		srv.running.Store(false)

		select {
		case err := <-errCh:
			if !errors.Is(err, suture.ErrTerminateSupervisorTree) || !errors.Is(err, ErrRelayServerStopped) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not notice the stopped server")
		}
		if srv.shutdowns.Load() != 0 {
			t.Error("a dead server should not be shut down again")
		}
	})

	t.Run("default and custom timeouts", func(t *testing.T) {
		if svc := NewRelayServerServiceWithTimeout(newMockRelayServer(), 0); svc.shutdownTimeout != 10*time.Second {
			t.Errorf("expected default 10s, got %v", svc.shutdownTimeout)
		}
		if svc := NewRelayServerServiceWithTimeout(newMockRelayServer(), 3*time.Second); svc.shutdownTimeout != 3*time.Second {
			t.Errorf("expected 3s, got %v", svc.shutdownTimeout)
		}
		if got := NewRelayServerService(newMockRelayServer()).String(); got != "relay-server" {
			t.Errorf("String() = %q", got)
		}
	})
}
