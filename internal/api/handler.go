// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/gateway"
	"github.com/tomtom215/switchboard/internal/wire"
)

// SessionVerifier decodes bearer session tokens.
type SessionVerifier interface {
	Verify(token string) (*auth.Session, error)
}

// SessionTokens is the subset of auth.TokenService used by the handlers.
type SessionTokens interface {
	SessionVerifier
	Issue(subjectID, username, accessLevel string) (string, error)
	Refresh(token string) (string, *auth.Session, error)
}

// LoginFlow is the OAuth login collaborator.
type LoginFlow interface {
	AuthorizationURL() string
	HandleCallback(ctx context.Context, code, state string) (*auth.Identity, error)
}

// Permissions evaluates the access policy.
type Permissions interface {
	Enforce(subject, object, action string) (bool, error)
}

// GatewayBackend is the socket gateway as seen by the HTTP layer.
type GatewayBackend interface {
	http.Handler
	Broadcast(msg *wire.Message)
	Stats() gateway.Stats
	Running() bool
}

// EventPublisher publishes injected events onto the relay bus.
type EventPublisher interface {
	Publish(ctx context.Context, msg *wire.Message) error
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HandlerConfig carries the settings the handlers need from the process
// configuration.
type HandlerConfig struct {
	Production    bool
	DefaultAccess string
	PostLoginURL  string
}

// Handler serves the HTTP front door.
type Handler struct {
	config    HandlerConfig
	tokens    SessionTokens
	gateway   GatewayBackend
	login     LoginFlow
	publisher EventPublisher
	startTime time.Time

	checksMu sync.RWMutex
	checks   map[string]ReadinessCheck
}

// NewHandler creates the HTTP handlers.
func NewHandler(cfg HandlerConfig, tokens SessionTokens, gw GatewayBackend) *Handler {
	if cfg.DefaultAccess == "" {
		cfg.DefaultAccess = "guest"
	}
	if cfg.PostLoginURL == "" {
		cfg.PostLoginURL = "/"
	}
	return &Handler{
		config:    cfg,
		tokens:    tokens,
		gateway:   gw,
		startTime: time.Now(),
		checks:    make(map[string]ReadinessCheck),
	}
}

// SetLoginFlow enables OAuth login. Call once during startup.
func (h *Handler) SetLoginFlow(flow LoginFlow) {
	h.login = flow
}

// SetEventPublisher routes injected events through the relay bus instead
// of broadcasting them locally. Call once during startup.
func (h *Handler) SetEventPublisher(publisher EventPublisher) {
	h.publisher = publisher
}

// AddReadinessCheck registers a named dependency for /health/ready.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checksMu.Lock()
	defer h.checksMu.Unlock()
	h.checks[name] = check
}

// Tokens returns the session verifier used by RequireSession.
func (h *Handler) Tokens() SessionVerifier {
	return h.tokens
}
