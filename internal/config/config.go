// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package config

import (
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Security SecurityConfig `koanf:"security"`
	OIDC     OIDCConfig     `koanf:"oidc"`
	LiveLog  LiveLogConfig  `koanf:"livelog"`
	Relay    RelayConfig    `koanf:"relay"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// GatewayConfig tunes the WebSocket gateway.
type GatewayConfig struct {
	PingInterval    time.Duration `koanf:"ping_interval"`
	WriteWait       time.Duration `koanf:"write_wait"`
	MaxMessageSize  int64         `koanf:"max_message_size"`
	SendBuffer      int           `koanf:"send_buffer"`
	BroadcastBuffer int           `koanf:"broadcast_buffer"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// SecurityConfig holds session token and HTTP protection settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	Issuer          string        `koanf:"issuer"`
	TokenExpiration time.Duration `koanf:"token_expiration"`
	TokenMaxAge     time.Duration `koanf:"token_max_age"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// Casbin policy overrides. Empty means the embedded defaults.
	PolicyModelPath string `koanf:"policy_model_path"`
	PolicyPath      string `koanf:"policy_path"`
}

// OIDCConfig configures the OAuth front door. When IssuerURL is empty the
// login endpoint issues anonymous tokens, which is only allowed outside
// production.
type OIDCConfig struct {
	IssuerURL     string   `koanf:"issuer_url"`
	ClientID      string   `koanf:"client_id"`
	ClientSecret  string   `koanf:"client_secret"`
	RedirectURL   string   `koanf:"redirect_url"`
	Scopes        []string `koanf:"scopes"`
	AccessClaim   string   `koanf:"access_claim"`
	DefaultAccess string   `koanf:"default_access"`
	PostLoginURL  string   `koanf:"post_login_url"`
}

// Enabled reports whether an OIDC provider is configured.
func (o OIDCConfig) Enabled() bool {
	return o.IssuerURL != ""
}

// LiveLogConfig points at the upstream TCP log feed.
type LiveLogConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// RelayConfig configures the pub/sub relay bridge.
type RelayConfig struct {
	Enabled        bool   `koanf:"enabled"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	URL            string `koanf:"url"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	Topic          string `koanf:"topic"`
	DefaultCommand string `koanf:"default_command"`
	QueueGroup     string `koanf:"queue_group"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}
