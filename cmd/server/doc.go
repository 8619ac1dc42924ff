// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package main is the entry point for the Switchboard server.

Switchboard is the control-room operator gateway: browsers hold one WebSocket
each, authenticate with a session token, issue commands and receive
broadcasts relayed from upstream producers (a TCP live log feed and a NATS
relay bus).

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("switchboard")
	├── RelaySupervisor ("relay-layer")
	│   └── Embedded NATS server watchdog (RELAY_EMBEDDED=true)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── Gateway (connection registry, broadcast fan-out, liveness sweep)
	│   ├── Relay bridge (RELAY_ENABLED=true)
	│   └── Live log bridge (LIVELOG_ENABLED=true)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (/ws, /api/v1/..., /metrics)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config file
 2. Logging: zerolog with JSON/console output modes
 3. Session tokens and the Casbin access policy
 4. Gateway and command registry
 5. Relay: embedded NATS server (optional) and bus connection
 6. OIDC login flow (optional)
 7. Chi router and HTTP listener
 8. Supervisor tree

# Configuration

Priority: Environment variables > Config file > Defaults

	HTTP_HOST, HTTP_PORT           listener
	ENVIRONMENT                    development or production
	JWT_SECRET                     required, 32+ characters
	JWT_EXPIRATION, JWT_MAX_AGE    token lifetime and refresh window
	WS_PING_INTERVAL               liveness sweep period
	LIVELOG_ENABLED, LIVELOG_HOST, LIVELOG_PORT
	RELAY_ENABLED, RELAY_EMBEDDED, RELAY_URL, RELAY_TOPIC
	OIDC_ISSUER_URL, OIDC_CLIENT_ID, OIDC_CLIENT_SECRET, OIDC_REDIRECT_URL
	LOG_LEVEL, LOG_FORMAT

# Exit Status

SIGINT and SIGTERM stop the tree gracefully and the process exits 0. An
unreachable live log feed or a dead embedded relay server terminates the
tree and the process exits non-zero.

# Example Usage

	export JWT_SECRET=$(openssl rand -hex 32)
	export LIVELOG_ENABLED=true LIVELOG_HOST=daq-01 LIVELOG_PORT=6006
	./switchboard
*/
package main
