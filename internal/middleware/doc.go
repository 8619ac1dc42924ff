// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package middleware provides infrastructure HTTP middleware for the chi router.

  - RequestID: request tracking through X-Request-ID and the logging context
  - PrometheusMetrics: request count and latency by route pattern

Both have the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Authentication and authorization middleware live in the api package, next
to the handlers whose error envelope they share.
*/
package middleware
