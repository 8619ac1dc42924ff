// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/upstream"
	"github.com/tomtom215/switchboard/internal/validation"
	"github.com/tomtom215/switchboard/internal/wire"
)

const maxEventBody = 64 << 10

// Delivery paths reported by PublishEvent.
const (
	deliveredViaRelay   = "relay"
	deliveredViaGateway = "gateway"
)

type publishEventRequest struct {
	Command string                 `json:"command" validate:"required,command"`
	Payload map[string]interface{} `json:"payload" validate:"omitempty,max=256"`
}

type publishEventResponse struct {
	Command      string `json:"command"`
	DeliveredVia string `json:"delivered_via"`
}

// PublishEvent injects a broadcast from an operator tool or script.
//
// @Summary Inject a broadcast event
// @Description Publishes to the relay bus when configured, otherwise queues a local broadcast.
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 202 {object} APIResponse{data=publishEventResponse}
// @Failure 400 {object} APIResponse "Invalid body"
// @Failure 502 {object} APIResponse "Relay publish failed"
// @Failure 503 {object} APIResponse "Relay circuit open or gateway stopped"
// @Router /events [post]
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req publishEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	msg := wire.NewBroadcast(req.Command, req.Payload)
	log := logging.Ctx(r.Context())

	if h.publisher != nil {
		err := h.publisher.Publish(r.Context(), msg)
		switch {
		case errors.Is(err, upstream.ErrCircuitOpen):
			rw.ServiceUnavailable("relay unavailable")
			return
		case err != nil:
			log.Warn().Err(err).Str("command", req.Command).Msg("Relay publish failed")
			rw.Error(http.StatusBadGateway, ErrCodeBadGateway, "relay publish failed")
			return
		}
		log.Info().Str("command", req.Command).Msg("Event published to relay")
		rw.Accepted(publishEventResponse{Command: req.Command, DeliveredVia: deliveredViaRelay})
		return
	}

	if !h.gateway.Running() {
		rw.ServiceUnavailable("gateway is not running")
		return
	}
	h.gateway.Broadcast(msg)
	log.Info().Str("command", req.Command).Msg("Event queued for broadcast")
	rw.Accepted(publishEventResponse{Command: req.Command, DeliveredVia: deliveredViaGateway})
}
