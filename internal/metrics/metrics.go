// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway connection metrics
	GatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_gateway_connections",
			Help: "Current number of active gateway connections",
		},
	)

	GatewayConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_gateway_connections_opened_total",
			Help: "Total number of connections that completed the handshake",
		},
	)

	GatewayConnectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_gateway_connections_closed_total",
			Help: "Total number of closed connections by reason",
		},
		[]string{"reason"}, // "remote", "policy", "dead", "slow", "shutdown"
	)

	GatewayHandshakeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_gateway_handshake_failures_total",
			Help: "Total number of handshakes rejected for an invalid token",
		},
	)

	// Frame metrics
	GatewayFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_gateway_frames_received_total",
			Help: "Total number of well-formed inbound frames by command",
		},
		[]string{"command"},
	)

	GatewayReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_gateway_replies_total",
			Help: "Total number of replies sent by code",
		},
		[]string{"code"},
	)

	GatewayCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_gateway_command_duration_seconds",
			Help:    "Command handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	GatewayTokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_gateway_token_refreshes_total",
			Help: "Total number of session tokens refreshed in-band",
		},
	)

	// Broadcast metrics
	BroadcastsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_broadcasts_delivered_total",
			Help: "Total number of broadcast frames queued to connections",
		},
	)

	BroadcastsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_broadcasts_filtered_total",
			Help: "Total number of broadcast deliveries suppressed by a connection filter",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_broadcasts_dropped_total",
			Help: "Total number of broadcasts dropped because the gateway queue was full",
		},
	)

	// Upstream bridge metrics
	UpstreamRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_upstream_records_total",
			Help: "Total number of upstream records by source and result",
		},
		[]string{"source", "result"}, // result: "emitted", "discarded"
	)

	UpstreamConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchboard_upstream_connected",
			Help: "Whether an upstream source is connected (1) or not (0)",
		},
		[]string{"source"},
	)

	RelayPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_relay_publishes_total",
			Help: "Total number of messages published to the relay bus",
		},
		[]string{"result"}, // "ok", "error", "circuit_open"
	)

	// Authorization metrics
	AuthzDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_authz_denials_total",
			Help: "Total number of access policy denials by object",
		},
		[]string{"object"},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordReply counts a reply frame by code.
func RecordReply(code int) {
	GatewayReplies.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordCommand records a dispatched command.
func RecordCommand(command string, duration time.Duration) {
	GatewayCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordUpstream counts an upstream record outcome.
func RecordUpstream(source string, emitted bool) {
	result := "discarded"
	if emitted {
		result = "emitted"
	}
	UpstreamRecords.WithLabelValues(source, result).Inc()
}

// SetUpstreamConnected records the connection state of an upstream source.
func SetUpstreamConnected(source string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	UpstreamConnected.WithLabelValues(source).Set(v)
}
