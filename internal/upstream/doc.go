// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package upstream connects external event producers to the gateway.

Two sources feed broadcasts into the gateway:

  - Relay subscribes to a watermill topic (core NATS, or an in-process
    gochannel when the relay URL is "memory://") and turns each JSON object
    into a broadcast.
  - LiveLog dials a TCP feed of "*1.4#...#...\n" records and broadcasts each
    valid record as a "live-log" message. Malformed records are discarded
    with a sampled warning.

A Bridge runs a Source under the supervisor tree. An unreachable upstream at
start-up terminates the tree; an upstream that closes its stream stays
down; other failures are restarted with backoff.

Publisher is the outbound side of the relay: the HTTP events endpoint uses
it so that every gateway sharing the bus fans the event out. Publishing is
guarded by a gobreaker circuit breaker.

EmbeddedServer runs a NATS server inside the process for single-node
deployments.
*/
package upstream
