// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/switchboard/internal/command"
	"github.com/tomtom215/switchboard/internal/filter"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/wire"
)

// Built-in command names.
const (
	CommandFilter   = "filter"
	CommandUnfilter = "unfilter"
	CommandWhoami   = "whoami"
)

func registerBuiltins(r *command.Registry) error {
	builtins := []struct {
		name    string
		handler command.Handler
	}{
		{CommandFilter, filterCommand},
		{CommandUnfilter, unfilterCommand},
		{CommandWhoami, whoamiCommand},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.handler); err != nil {
			return fmt.Errorf("register built-in command: %w", err)
		}
	}
	return nil
}

// filterCommand installs the query in the frame's "filter" field. An absent
// or null filter, or one without clauses, clears it. A query that fails
// validation is treated as an injection attempt and closes the connection.
func filterCommand(ctx context.Context, conn command.Conn, msg *wire.Message) (*wire.Message, error) {
	f, err := filter.Parse(msg.Payload["filter"])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", command.ErrPolicyViolation, err)
	}
	conn.SetFilter(f)

	if f == nil {
		logging.Ctx(ctx).Debug().Msg("broadcast filter cleared")
		return nil, nil
	}
	logging.Ctx(ctx).Debug().Str("filter", f.String()).Msg("broadcast filter set")
	return nil, nil
}

func unfilterCommand(ctx context.Context, conn command.Conn, _ *wire.Message) (*wire.Message, error) {
	conn.SetFilter(nil)
	logging.Ctx(ctx).Debug().Msg("broadcast filter cleared")
	return nil, nil
}

func whoamiCommand(_ context.Context, conn command.Conn, _ *wire.Message) (*wire.Message, error) {
	s := conn.Session()
	return wire.New(wire.CodeOK, CommandWhoami).WithPayload(map[string]interface{}{
		"subject_id": s.SubjectID,
		"username":   s.Username,
		"access":     s.AccessLevel,
		"expires_at": s.ExpiresAt.UTC().Format(time.RFC3339),
	}), nil
}
