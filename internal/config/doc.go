// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package config loads and validates Switchboard configuration.
//
// Configuration is layered with Koanf v2, lowest priority first:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, or the first of DefaultConfigPaths found)
//  3. Environment variables, mapped explicitly by envTransformFunc
//
// Only environment variables listed in the mapping table are read; anything
// else in the process environment is ignored. Validate is run after
// unmarshaling and any failure is fatal at startup.
//
// Example YAML:
//
//	server:
//	  port: 8080
//	gateway:
//	  ping_interval: 30s
//	security:
//	  jwt_secret: "change-me-to-at-least-32-characters"
//	  token_expiration: 5m
//	  token_max_age: 24h
//	livelog:
//	  enabled: true
//	  host: daq-logs.example
//	  port: 6006
package config
