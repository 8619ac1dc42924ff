// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
//
// @Summary Kubernetes liveness probe
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse "Service is alive"
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 200 only when the gateway is running and every registered
// dependency check passes, otherwise 503.
//
// @Summary Kubernetes readiness probe
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse{data=readiness} "Service is ready"
// @Failure 503 {object} APIResponse{data=readiness} "Service is not ready"
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	result := readiness{Status: "ready", Checks: make(map[string]string)}

	if h.gateway.Running() {
		result.Checks["gateway"] = "ok"
	} else {
		result.Checks["gateway"] = "not running"
		result.Status = "not_ready"
	}

	h.checksMu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			result.Checks[name] = err.Error()
			result.Status = "not_ready"
			continue
		}
		result.Checks[name] = "ok"
	}
	h.checksMu.RUnlock()

	if result.Status != "ready" {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "service not ready", result)
		return
	}
	WriteSuccess(w, r, result)
}
