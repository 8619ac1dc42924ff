// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/command"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/wire"
)

// closeError terminates the connection that produced it.
type closeError struct {
	Code         int
	Reason       string
	Err          error
	metricReason string
}

func (e *closeError) Error() string {
	return fmt.Sprintf("close %d (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *closeError) Unwrap() error {
	return e.Err
}

func policyViolation(reason string, err error) *closeError {
	return &closeError{Code: websocket.ClosePolicyViolation, Reason: reason, Err: err, metricReason: reasonPolicy}
}

// handleFrame runs one inbound frame through decode, token check, access
// check and dispatch. A returned error means the connection must close.
func (g *Gateway) handleFrame(ctx context.Context, c *Connection, data []byte) error {
	msg, err := wire.DecodeInbound(data)
	if err != nil {
		return policyViolation("malformed frame", err)
	}
	metrics.GatewayFramesReceived.WithLabelValues(msg.Command).Inc()

	session, err := g.tokens.Verify(msg.Token)
	if err != nil {
		if !errors.Is(err, auth.ErrTokenExpired) {
			return policyViolation("invalid token", err)
		}
		newToken, refreshed, rerr := g.tokens.Refresh(msg.Token)
		if rerr != nil {
			return policyViolation("session expired", rerr)
		}
		notice := wire.New(wire.CodeTokenRefreshed, wire.CommandNewToken).
			WithPayload(map[string]interface{}{"newtoken": newToken})
		if err := c.reply(notice); err != nil {
			return err
		}
		metrics.GatewayTokenRefreshes.Inc()
		logging.Ctx(ctx).Debug().Time("expires_at", refreshed.ExpiresAt).Msg("session token refreshed")
		session = refreshed
	}
	c.setSession(session)

	reply, err := g.execute(ctx, c, session, msg)
	if err != nil {
		return err
	}
	if reply.Code == 0 {
		reply.Code = wire.CodeOK
	}
	if reply.Command == "" {
		reply.Command = msg.Command
	}
	return c.reply(reply)
}

// execute resolves the reply for msg. It only fails for handlers that report
// a policy violation.
func (g *Gateway) execute(ctx context.Context, c *Connection, session *auth.Session, msg *wire.Message) (*wire.Message, error) {
	log := logging.Ctx(ctx)

	if !g.registry.Has(msg.Command) {
		return wire.Errorf(wire.CodeUnknownCommand, msg.Command, "unknown command %q", msg.Command), nil
	}

	if g.authz != nil {
		allowed, err := g.authz.CanInvoke(session.AccessLevel, msg.Command)
		if err != nil {
			log.Error().Err(err).Str("command", msg.Command).Msg("access check failed")
			return wire.Errorf(wire.CodeHandlerError, msg.Command, "access check failed"), nil
		}
		if !allowed {
			log.Info().Str("command", msg.Command).Str("access", session.AccessLevel).Msg("command denied")
			return wire.Errorf(wire.CodeForbidden, msg.Command, "access level %q may not invoke %q", session.AccessLevel, msg.Command), nil
		}
	}

	start := time.Now()
	reply, err := g.registry.Dispatch(ctx, msg.Command, c, msg)
	metrics.RecordCommand(msg.Command, time.Since(start))
	if err == nil {
		if reply == nil {
			reply = wire.New(wire.CodeOK, msg.Command)
		}
		return reply, nil
	}

	var (
		unknown *command.UnknownCommandError
		coded   *wire.Error
	)
	switch {
	case errors.Is(err, command.ErrPolicyViolation):
		return nil, policyViolation(msg.Command+" rejected", err)
	case errors.As(err, &unknown):
		return wire.Errorf(wire.CodeUnknownCommand, msg.Command, "unknown command %q", msg.Command), nil
	case errors.As(err, &coded):
		return &wire.Message{Code: coded.Code, Command: msg.Command, Message: coded.Message}, nil
	default:
		log.Error().Err(err).Str("command", msg.Command).Msg("command handler failed")
		return wire.Errorf(wire.CodeHandlerError, msg.Command, "command %q failed", msg.Command), nil
	}
}

// reply encodes and queues a direct reply.
func (c *Connection) reply(m *wire.Message) error {
	frame, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := c.enqueue(frame); err != nil {
		return &closeError{Code: websocket.CloseTryAgainLater, Reason: "send queue full", Err: err, metricReason: reasonSlowConsumer}
	}
	metrics.RecordReply(m.Code)
	return nil
}
