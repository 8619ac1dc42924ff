// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import "net/http"

// GatewayStats returns the connection registry snapshot.
//
// @Summary Gateway diagnostics
// @Tags Gateway
// @Produce json
// @Security BearerAuth
// @Success 200 {object} APIResponse{data=gateway.Stats}
// @Router /gateway/stats [get]
func (h *Handler) GatewayStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.gateway.Stats())
}
