// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/supervisor"
	"github.com/tomtom215/switchboard/internal/supervisor/services"
	"github.com/tomtom215/switchboard/internal/upstream"
)

// errRelayServerDown is reported by the readiness check when the embedded
// NATS server has stopped.
var errRelayServerDown = errors.New("embedded relay server is not running")

// RelayComponents holds the pub/sub relay: an optional embedded NATS server,
// the bus connection, the publisher used by the events endpoint and the
// relay source that feeds the gateway.
type RelayComponents struct {
	server    *upstream.EmbeddedServer
	bus       *upstream.Bus
	publisher *upstream.Publisher
	relay     *upstream.Relay
}

// InitRelay starts the embedded server when configured and opens the bus.
// It returns nil when the relay is disabled.
//
// The embedded server is started here rather than by the supervisor because
// the bus needs a reachable server before the tree starts. The supervisor
// only watches it afterwards.
func InitRelay(cfg config.RelayConfig) (*RelayComponents, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Relay bus disabled (RELAY_ENABLED=false)")
		return nil, nil
	}

	c := &RelayComponents{}
	url := cfg.URL

	if cfg.EmbeddedServer {
		srv, err := upstream.NewEmbeddedServer(cfg.Host, cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("start embedded relay server: %w", err)
		}
		c.server = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded relay server started")
	}

	bus, err := upstream.OpenBus(url, cfg.QueueGroup, upstream.NewWatermillLogger())
	if err != nil {
		c.Close(context.Background())
		return nil, fmt.Errorf("open relay bus: %w", err)
	}
	c.bus = bus

	c.publisher = upstream.NewPublisher(bus.Publisher, cfg.Topic, upstream.DefaultCircuitBreakerConfig())
	c.relay = upstream.NewRelay(bus.Subscriber, cfg.Topic, cfg.DefaultCommand)

	logging.Info().
		Str("url", url).
		Str("topic", cfg.Topic).
		Str("queue_group", cfg.QueueGroup).
		Msg("Relay bus connected")
	return c, nil
}

// Publisher returns the circuit-breaking publisher, or nil when the relay is
// disabled.
func (c *RelayComponents) Publisher() *upstream.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher
}

// AddToSupervisor registers the relay services. The embedded server goes in
// the relay layer and the bridge into the gateway in the messaging layer.
// It is a no-op for nil components.
func (c *RelayComponents) AddToSupervisor(tree *supervisor.SupervisorTree, sink upstream.Sink) {
	if c == nil {
		return
	}
	if c.server != nil {
		tree.AddRelayService(services.NewRelayServerService(c.server))
		logging.Info().Msg("Embedded relay server added to supervisor tree (relay layer)")
	}
	tree.AddMessagingService(upstream.NewBridge(c.relay, sink))
	logging.Info().Msg("Relay bridge added to supervisor tree (messaging layer)")
}

// Ready reports whether the embedded server, if any, is still running.
func (c *RelayComponents) Ready(context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	if !c.server.IsRunning() {
		return errRelayServerDown
	}
	return nil
}

// Close closes the bus and shuts down the embedded server. Safe on nil.
func (c *RelayComponents) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing relay bus")
		}
	}
	if c.server != nil && c.server.IsRunning() {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Error shutting down embedded relay server")
		}
	}
}
