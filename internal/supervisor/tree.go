// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree manages the hierarchical supervisor structure for Switchboard.
//
// The tree is organized into three layers:
//   - relay: the embedded NATS server (if enabled)
//   - messaging: the gateway and the upstream bridges
//   - api: HTTP server
//
// A bridge that cannot reach its upstream returns
// suture.ErrTerminateSupervisorTree; the tree then stops and Serve returns
// that error so the process can exit non-zero.
type SupervisorTree struct {
	root      *suture.Supervisor
	relay     *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
	logger    *slog.Logger
	config    TreeConfig

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	fatal  error
}

// NewSupervisorTree creates a new supervisor tree with the given configuration.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if logger == nil {
		return nil, fmt.Errorf("supervisor tree requires a logger")
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	t := &SupervisorTree{logger: logger, config: config}

	// MustHook has a pointer receiver.
	slogHook := (&sutureslog.Handler{Logger: logger}).MustHook()
	eventHook := func(e suture.Event) {
		slogHook(e)
		t.watchTermination(e)
	}

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Children inherit the EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	t.root = suture.New("switchboard", rootSpec)
	t.relay = suture.New("relay-layer", childSpec)
	t.messaging = suture.New("messaging-layer", childSpec)
	t.api = suture.New("api-layer", childSpec)

	t.root.Add(t.relay)
	t.root.Add(t.messaging)
	t.root.Add(t.api)

	return t, nil
}

// watchTermination stops the whole tree when any service, however deeply
// nested, asks for tree termination.
func (t *SupervisorTree) watchTermination(e suture.Event) {
	term, ok := e.(suture.EventServiceTerminate)
	if !ok {
		return
	}
	err, ok := term.Err.(error)
	if !ok || !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		return
	}
	t.Terminate(err)
}

// Terminate stops the tree with err as the reason. Serve returns err.
func (t *SupervisorTree) Terminate(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatal == nil {
		t.fatal = err
	}
	if t.cancel != nil {
		t.cancel(err)
	}
}

// Root returns the root supervisor for direct access if needed.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddRelayService adds a service to the relay layer supervisor.
// Use this for the embedded NATS server.
func (t *SupervisorTree) AddRelayService(svc suture.Service) suture.ServiceToken {
	return t.relay.Add(svc)
}

// AddMessagingService adds a service to the messaging layer supervisor.
// Use this for the gateway and upstream bridges.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPIService adds a service to the API layer supervisor.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled or a service terminates it.
// It returns the terminating error in the latter case.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	t.mu.Lock()
	t.cancel = cancel
	fatal := t.fatal
	t.mu.Unlock()
	if fatal != nil {
		return fatal
	}

	err := t.root.Serve(ctx)

	t.mu.Lock()
	fatal = t.fatal
	t.mu.Unlock()
	if fatal != nil {
		return fatal
	}
	return err
}

// ServeBackground starts the tree in a background goroutine. The returned
// channel receives Serve's result.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- t.Serve(ctx)
	}()
	return errCh
}

// UnstoppedServiceReport returns services that failed to stop within the
// configured shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
