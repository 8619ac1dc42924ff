// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
)

const defaultStateTTL = 10 * time.Minute

// accessRank orders access levels so that the highest one found in a claim wins.
var accessRank = map[string]int{
	"guest":    1,
	"operator": 2,
	"admin":    3,
}

// Identity is the operator identity established by a login, from which a
// session token is issued.
type Identity struct {
	SubjectID   string
	Username    string
	AccessLevel string
}

// OIDCFlow runs the authorization code flow against an OIDC provider.
type OIDCFlow struct {
	rp            rp.RelyingParty
	accessClaim   string
	defaultAccess string
	states        *stateStore
}

// NewOIDCFlow performs discovery against the issuer and returns a flow with
// PKCE enabled.
func NewOIDCFlow(ctx context.Context, cfg *config.OIDCConfig) (*OIDCFlow, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("oidc issuer_url is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, oidc.ScopeProfile}
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.IssuerURL,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.RedirectURL,
		scopes,
		rp.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		rp.WithPKCE(nil),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}

	return &OIDCFlow{
		rp:            relyingParty,
		accessClaim:   cfg.AccessClaim,
		defaultAccess: cfg.DefaultAccess,
		states:        newStateStore(defaultStateTTL),
	}, nil
}

// AuthorizationURL returns the provider URL the browser is redirected to.
func (f *OIDCFlow) AuthorizationURL() string {
	state := f.states.issue()
	return rp.AuthURL(state, f.rp)
}

// HandleCallback consumes the state, exchanges the code and maps the ID
// token claims to an Identity.
func (f *OIDCFlow) HandleCallback(ctx context.Context, code, state string) (*Identity, error) {
	if !f.states.consume(state) {
		return nil, ErrInvalidState
	}

	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, f.rp)
	if err != nil {
		logging.Error().Err(err).Msg("Token exchange failed")
		return nil, fmt.Errorf("%w: %s", ErrTokenExchangeFailed, err.Error())
	}
	if tokens.IDTokenClaims == nil {
		return nil, fmt.Errorf("%w: no id token in response", ErrTokenExchangeFailed)
	}

	identity := MapClaims(tokens.IDTokenClaims, f.accessClaim, f.defaultAccess)
	logging.Info().
		Str("user", identity.Username).
		Str("access", identity.AccessLevel).
		Msg("OIDC login successful")
	return identity, nil
}

// MapClaims extracts an Identity from ID token claims. The username falls
// back through preferred_username, name, email and finally the subject. The
// access claim may be a string or a list; the highest known level wins.
func MapClaims(claims *oidc.IDTokenClaims, accessClaim, defaultAccess string) *Identity {
	identity := &Identity{
		SubjectID:   claims.Subject,
		AccessLevel: defaultAccess,
	}

	for _, candidate := range []string{claims.PreferredUsername, claims.Name, claims.Email, claims.Subject} {
		if candidate != "" {
			identity.Username = candidate
			break
		}
	}

	best := 0
	for _, level := range claimStrings(claims.Claims, accessClaim) {
		if rank := accessRank[level]; rank > best {
			best = rank
			identity.AccessLevel = level
		}
	}
	return identity
}

func claimStrings(claims map[string]interface{}, key string) []string {
	if claims == nil || key == "" {
		return nil
	}
	switch v := claims[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// stateStore keeps single-use OAuth state values in memory.
type stateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[string]time.Time
	now    func() time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, states: make(map[string]time.Time), now: time.Now}
}

func (s *stateStore) issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expires := range s.states {
		if now.After(expires) {
			delete(s.states, key)
		}
	}
	state := uuid.New().String()
	s.states[state] = now.Add(s.ttl)
	return state
}

func (s *stateStore) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return !s.now().After(expires)
}
