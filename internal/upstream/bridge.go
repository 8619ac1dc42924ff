// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/wire"
)

// Sink receives broadcasts from a bridge. *gateway.Gateway satisfies it.
type Sink interface {
	Publish(ctx context.Context, msg *wire.Message) error
}

// Bridge runs a Source as a suture service and emits into a Sink.
//
// Error mapping:
//   - ErrUpstreamUnreachable terminates the supervisor tree
//   - ErrUpstreamClosed stops the bridge without restart
//   - any other error is returned and the supervisor restarts the bridge
type Bridge struct {
	source Source
	sink   Sink
}

// NewBridge creates a bridge from source to sink.
func NewBridge(source Source, sink Sink) *Bridge {
	return &Bridge{source: source, sink: sink}
}

// Serve implements suture.Service.
func (b *Bridge) Serve(ctx context.Context) error {
	err := b.source.Run(ctx, b.sink.Publish)

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil:
		return suture.ErrDoNotRestart
	case errors.Is(err, ErrUpstreamUnreachable):
		logging.Error().Err(err).Str("source", b.source.String()).Msg("upstream unreachable")
		return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
	case errors.Is(err, ErrUpstreamClosed):
		logging.Warn().Err(err).Str("source", b.source.String()).Msg("upstream bridge stopped")
		return suture.ErrDoNotRestart
	default:
		return err
	}
}

// String implements fmt.Stringer for suture logs.
func (b *Bridge) String() string {
	return "bridge:" + b.source.String()
}
