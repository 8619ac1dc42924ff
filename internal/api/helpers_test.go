// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/gateway"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/wire"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

const testSecret = "api-test-secret-that-is-at-least-32-characters"

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(&config.SecurityConfig{
		JWTSecret:       testSecret,
		Issuer:          "switchboard-test",
		TokenExpiration: 5 * time.Minute,
		TokenMaxAge:     time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func newTestEnforcer(t *testing.T) *authz.Enforcer {
	t.Helper()
	e, err := authz.NewEnforcer(authz.Config{})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	return e
}

func issue(t *testing.T, tokens *auth.TokenService, access string) string {
	t.Helper()
	tok, err := tokens.Issue("42", access+"-user", access)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

// fakeGateway records broadcasts instead of fanning them out.
type fakeGateway struct {
	mu         sync.Mutex
	running    bool
	broadcasts []*wire.Message
	stats      gateway.Stats
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (g *fakeGateway) Broadcast(msg *wire.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcasts = append(g.broadcasts, msg)
}

func (g *fakeGateway) Stats() gateway.Stats { return g.stats }

func (g *fakeGateway) Running() bool { return g.running }

func (g *fakeGateway) sent() []*wire.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*wire.Message(nil), g.broadcasts...)
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	msgs []*wire.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *wire.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeLoginFlow struct {
	identity *auth.Identity
	err      error
}

func (f *fakeLoginFlow) AuthorizationURL() string {
	return "https://idp.example.com/authorize?state=s1"
}

func (f *fakeLoginFlow) HandleCallback(_ context.Context, code, state string) (*auth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}
