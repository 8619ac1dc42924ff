// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package authz decides which access levels may invoke which gateway
// commands and REST operations, using a Casbin RBAC model.
//
// Subjects are access levels carried in session tokens (guest, operator,
// admin), with operator inheriting guest and admin inheriting operator.
// Objects are "command:<name>", "events" and "gateway". The model and
// default policy are embedded; both can be overridden from files with
// POLICY_MODEL_PATH and POLICY_PATH.
package authz
