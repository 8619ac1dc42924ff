// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package gateway is the operator-facing WebSocket endpoint.

A browser opens /ws?token=<session token>. The token is verified before the
first application frame; on failure the socket is closed with 1008, on
success the gateway sends {"code":200,"command":"authed"} and the connection
becomes active.

Every inbound frame carries its own token. Frames are processed one at a time
per connection, in receipt order:

 1. decode; a malformed frame closes the connection with 1008
 2. verify the token; an expired token still inside its maximum age is
    refreshed and a 440 "new-token" frame is queued ahead of the reply
 3. check the access policy; denial yields a 403 reply
 4. dispatch through the command registry; unknown commands yield 404 and
    handler failures yield 500 without closing the connection

# Broadcasts

Upstream bridges call Publish (blocking, honours ctx) and the HTTP layer
calls Broadcast (drops when the queue is full). The run loop fans each
message out to every connection whose filter accepts the payload. A
connection whose send queue is full is removed; other connections are not
affected.

# Liveness

Every ping interval the run loop terminates connections that did not answer
the previous ping and pings the rest.

# Built-in Commands

  - filter: install or clear a structured broadcast filter
  - unfilter: clear the filter
  - whoami: report the session identity
*/
package gateway
