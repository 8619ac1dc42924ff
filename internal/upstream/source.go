// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/switchboard/internal/wire"
)

var (
	// ErrUpstreamUnreachable is returned when the producer refuses the
	// connection or its host does not resolve. It is fatal at startup.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamClosed is returned when the producer ends the stream.
	ErrUpstreamClosed = errors.New("upstream closed the stream")
)

// EmitFunc delivers one broadcast to the gateway. It blocks while the
// gateway queue is full and fails once ctx is done.
type EmitFunc func(ctx context.Context, msg *wire.Message) error

// Source adapts an external producer into gateway broadcasts. Run blocks
// until ctx is canceled or the source fails.
type Source interface {
	Run(ctx context.Context, emit EmitFunc) error
	String() string
}

// ParseError reports an upstream record that could not be turned into a
// broadcast. The record is discarded; the source keeps running.
type ParseError struct {
	Source string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: discarded record: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: discarded record: %s", e.Source, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
