// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package config

import (
	"fmt"
	"time"
)

const (
	minJWTSecretLength   = 32
	minPingInterval      = time.Second
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
)

var validAccessLevels = map[string]bool{
	"guest":    true,
	"operator": true,
	"admin":    true,
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateOIDC(); err != nil {
		return err
	}
	if err := c.validateLiveLog(); err != nil {
		return err
	}
	return c.validateRelay()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateGateway() error {
	g := c.Gateway
	if g.PingInterval < minPingInterval {
		return fmt.Errorf("WS_PING_INTERVAL must be at least %v", minPingInterval)
	}
	if g.WriteWait <= 0 {
		return fmt.Errorf("WS_WRITE_WAIT must be positive")
	}
	if g.MaxMessageSize <= 0 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be positive")
	}
	if g.SendBuffer < 1 || g.BroadcastBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER and WS_BROADCAST_BUFFER must be at least 1")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if len(s.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if s.Issuer == "" {
		return fmt.Errorf("JWT_ISSUER is required")
	}
	if s.TokenExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if s.TokenMaxAge <= s.TokenExpiration {
		return fmt.Errorf("JWT_MAX_AGE (%v) must be greater than JWT_EXPIRATION (%v)", s.TokenMaxAge, s.TokenExpiration)
	}
	if s.RateLimitDisabled {
		return nil
	}
	if s.RateLimitReqs < minRateLimitRequests || s.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if s.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

func (c *Config) validateOIDC() error {
	o := c.OIDC
	if !validAccessLevels[o.DefaultAccess] {
		return fmt.Errorf("OIDC_DEFAULT_ACCESS must be one of: guest, operator, admin")
	}
	if !o.Enabled() {
		if c.IsProduction() {
			return fmt.Errorf("OIDC_ISSUER_URL is required when ENVIRONMENT=production; " +
				"anonymous login is only available in development")
		}
		return nil
	}
	if o.ClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}
	if o.RedirectURL == "" {
		return fmt.Errorf("OIDC_REDIRECT_URL is required when OIDC_ISSUER_URL is set")
	}
	return nil
}

func (c *Config) validateLiveLog() error {
	if !c.LiveLog.Enabled {
		return nil
	}
	if c.LiveLog.Host == "" {
		return fmt.Errorf("LIVELOG_HOST is required when LIVELOG_ENABLED=true")
	}
	if c.LiveLog.Port < 1 || c.LiveLog.Port > 65535 {
		return fmt.Errorf("LIVELOG_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateRelay() error {
	r := c.Relay
	if !r.Enabled {
		return nil
	}
	if r.Topic == "" {
		return fmt.Errorf("RELAY_TOPIC is required when RELAY_ENABLED=true")
	}
	if r.DefaultCommand == "" {
		return fmt.Errorf("RELAY_DEFAULT_COMMAND must not be empty")
	}
	if r.EmbeddedServer {
		if r.Port < 1 || r.Port > 65535 {
			return fmt.Errorf("RELAY_PORT must be between 1 and 65535")
		}
		return nil
	}
	if r.URL == "" {
		return fmt.Errorf("RELAY_URL is required when RELAY_EMBEDDED=false")
	}
	return nil
}
