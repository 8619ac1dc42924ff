// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package auth issues and verifies the session tokens that admit operators to
// the gateway, and runs the OIDC login flow that produces them.
//
// # Session tokens
//
// A session token is an HS256-signed JWT. The token is the session: the
// gateway keeps no server-side session store and re-derives the Session from
// the token carried on every inbound frame.
//
//	tokens, err := auth.NewTokenService(&cfg.Security)
//	token, err := tokens.Issue("1042", "alice", "operator")
//	session, err := tokens.Verify(token)
//
// Tokens are short-lived (expiration, default 5m). An expired token whose
// iat is still younger than maxAge (default 24h) can be exchanged for a fresh
// token with Refresh, which lets a browser tab survive brief disconnects
// without a full re-login:
//
//	if errors.Is(err, auth.ErrTokenExpired) {
//	    newToken, session, err = tokens.Refresh(token)
//	}
//
// # OIDC login
//
// OIDCFlow wraps a Zitadel relying party (certified OIDC client with PKCE)
// and maps ID token claims to an Identity from which a session token is
// issued.
package auth
