// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package supervisor provides process supervision for Switchboard using suture v4.

The supervisor tree manages every long-running service of the process with
automatic restart, failure isolation, and graceful shutdown.

# Overview

Services are organized into three layers:

	RootSupervisor ("switchboard")
	├── RelaySupervisor ("relay-layer")
	│   └── RelayServerService (if relay.embedded_server)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── GatewayService
	│   ├── Bridge relay(<topic>) (if relay.enabled)
	│   └── Bridge livelog(<host:port>) (if livelog.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A bridge crash is restarted with backoff and never takes the HTTP listener
down with it.

# Termination

A bridge whose upstream is unreachable at start-up returns
suture.ErrTerminateSupervisorTree. The tree watches service termination
events, cancels itself, and SupervisorTree.Serve returns the error so that
main can exit with a non-zero status.

# Logging

Supervisor events are logged through sutureslog into the process's slog
logger, which is backed by zerolog (see logging.NewSlogLogger).

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(services.NewGatewayService(gw))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)
*/
package supervisor
