// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package services provides suture.Service wrappers for Switchboard components.

Each wrapper translates a component's lifecycle (Run, ListenAndServe,
start-then-Shutdown) into suture's context-aware Serve pattern and names the
service for supervisor logs through fmt.Stringer.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Optionally serves on a listener bound before the tree starts

Gateway (GatewayService):
  - Delegates to gateway.Gateway.Run
  - The gateway closes every connection with 1001 on shutdown

Relay Server (RelayServerService):
  - Supervises an already started embedded NATS server
  - Terminates the tree if the server stops on its own

Upstream bridges implement suture.Service themselves (upstream.Bridge) and
need no wrapper.

# Usage

	tree.AddRelayService(services.NewRelayServerService(embedded))
	tree.AddMessagingService(services.NewGatewayService(gw))
	tree.AddAPIService(services.NewHTTPServerServiceWithListener(server, ln, cfg.Server.ShutdownTimeout))
*/
package services
