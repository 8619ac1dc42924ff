// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/wire"
)

// ServeHTTP upgrades the request and authenticates it with the token in the
// "token" query parameter. A missing or invalid token closes the socket with
// 1008 before any application frame is sent.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.Running() {
		http.Error(w, "gateway unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("component", "gateway").Msg("websocket upgrade failed")
		return
	}

	session, err := g.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		metrics.GatewayHandshakeFailures.Inc()
		logging.Warn().
			Err(err).
			Str("component", "gateway").
			Str("remote_addr", r.RemoteAddr).
			Msg("handshake rejected")
		deadline := time.Now().Add(g.cfg.WriteWait)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"), deadline)
		_ = conn.Close()
		return
	}

	c := newConnection(g, conn, session)
	authed, err := wire.Encode(wire.New(wire.CodeOK, wire.CommandAuthed))
	if err == nil {
		err = c.enqueue(authed)
	}
	if err != nil {
		c.log.Error().Err(err).Msg("failed to queue authed frame")
		_ = conn.Close()
		return
	}
	metrics.RecordReply(wire.CodeOK)

	go c.writePump()
	if err := g.registerConn(r.Context(), c); err != nil {
		c.log.Warn().Err(err).Msg("connection not registered")
		c.closeSend(websocket.CloseGoingAway, "server shutting down")
		return
	}
	go c.readPump()
}

// checkOrigin accepts any origin when the allow list is empty or contains
// "*". Otherwise the Origin header must match an entry exactly.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || (origin != "" && strings.EqualFold(allowed, origin)) {
			return true
		}
	}
	logging.Warn().Str("component", "gateway").Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and truncates untrusted header
// values before logging.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
