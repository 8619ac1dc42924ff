// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExpired is matched by an InvalidTokenError whose only defect is
	// an expiry in the past. Such tokens may still be refreshable.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenTooOld is matched when a token is past its maxAge refresh window.
	ErrTokenTooOld = errors.New("token exceeds maximum age")

	// ErrInvalidState is returned for unknown, reused or expired OIDC state.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrTokenExchangeFailed wraps failures exchanging an authorization code.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
)

// InvalidTokenError reports a session token that failed signature, issuer,
// expiry or max age checks.
type InvalidTokenError struct {
	Reason string
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid token: %s", e.Reason)
	}
	return fmt.Sprintf("invalid token: %s: %v", e.Reason, e.Err)
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// Expired reports whether the token would be valid but for its expiry.
func (e *InvalidTokenError) Expired() bool {
	return errors.Is(e.Err, ErrTokenExpired)
}
