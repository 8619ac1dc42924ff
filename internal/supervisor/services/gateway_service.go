// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"fmt"
)

// GatewayRunner matches *gateway.Gateway's Run method.
//
// Defined here so that services does not import the gateway package.
type GatewayRunner interface {
	Run(ctx context.Context) error
}

// GatewayService wraps the WebSocket gateway as a supervised service.
//
// Run already follows the suture pattern: it owns the connection registry,
// fans out broadcasts, sweeps unresponsive connections, and on cancellation
// closes every connection with 1001 before returning ctx.Err().
type GatewayService struct {
	gateway GatewayRunner
	name    string
}

// NewGatewayService creates a new gateway service wrapper.
func NewGatewayService(gateway GatewayRunner) *GatewayService {
	return &GatewayService{
		gateway: gateway,
		name:    "gateway",
	}
}

// Serve implements suture.Service.
func (g *GatewayService) Serve(ctx context.Context) error {
	err := g.gateway.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("gateway stopped: %w", err)
	}
	return err
}

// String implements fmt.Stringer for suture logs.
func (g *GatewayService) String() string {
	return g.name
}
