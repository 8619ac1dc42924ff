// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package api provides the HTTP front door for Switchboard.

The front door does not take part in the socket protocol. It issues session
tokens, exposes diagnostics and lets operator tooling inject broadcasts.

Routes:

	GET  /api/v1/health/live       liveness probe
	GET  /api/v1/health/ready      readiness probe (gateway + registered checks)
	GET  /api/v1/auth/login        OIDC redirect, or anonymous token in development
	GET  /api/v1/auth/callback     OIDC callback; redirects with ?token=...
	POST /api/v1/auth/refresh      {token} -> {token, expires_at}
	POST /api/v1/events            bearer token, events:publish
	GET  /api/v1/gateway/stats     bearer token, gateway:inspect
	GET  /metrics                  Prometheus
	GET  /ws?token=...             gateway upgrade

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "FORBIDDEN", "message": "..."}, "meta": {...}}

Usage:

	handler := api.NewHandler(api.HandlerConfig{DefaultAccess: "guest"}, tokens, gw)
	handler.SetEventPublisher(publisher)
	router := api.NewRouter(handler, enforcer, api.NewChiMiddleware(mwConfig))
	srv := &http.Server{Handler: router.Setup()}

Authentication middleware (RequireSession, RequirePermission) lives here
rather than in the middleware package because it writes the same error
envelope as the handlers.
*/
package api
