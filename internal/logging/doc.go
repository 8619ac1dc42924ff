// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package logging provides the zerolog-based structured logger used across
// Switchboard.
//
// A single global logger is configured once at startup with Init and used
// through package-level helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("conn_id", id).Msg("Connection authenticated")
//	logging.Err(err).Msg("Relay subscription failed")
//
// Gateway connections carry their own child logger (see ForConnection) so that
// every line emitted while serving a socket is tagged with conn_id and
// username. HTTP handlers use Ctx(ctx) to pick up the request ID placed in the
// context by middleware.
//
// SlogHandler adapts the zerolog backend to log/slog for libraries that only
// accept a *slog.Logger, such as the sutureslog supervisor hook.
//
// Always terminate a chain with Msg or Send and prefer structured fields over
// Msgf formatting.
package logging
