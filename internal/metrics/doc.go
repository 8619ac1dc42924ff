// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package metrics holds the Prometheus collectors exported at /metrics.
//
// Collectors are registered on the default registry with promauto when the
// package is loaded. Components record through the helper functions so that
// label values stay consistent.
package metrics
