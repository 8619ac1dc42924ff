// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import "errors"

var (
	// ErrLoginDisabled is returned by the login endpoint when no OIDC
	// provider is configured outside development.
	ErrLoginDisabled = errors.New("login requires an OIDC provider")

	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
)
