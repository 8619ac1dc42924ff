// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"switchboard.yaml",
	"switchboard.yml",
	"/etc/switchboard/config.yaml",
	"/etc/switchboard/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Gateway: GatewayConfig{
			PingInterval:    30 * time.Second,
			WriteWait:       10 * time.Second,
			MaxMessageSize:  64 * 1024,
			SendBuffer:      256,
			BroadcastBuffer: 1024,
			AllowedOrigins:  []string{"*"},
		},
		Security: SecurityConfig{
			Issuer:          "switchboard",
			TokenExpiration: 5 * time.Minute,
			TokenMaxAge:     24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		OIDC: OIDCConfig{
			Scopes:        []string{"openid", "profile", "email"},
			AccessClaim:   "switchboard_access",
			DefaultAccess: "guest",
			PostLoginURL:  "/",
		},
		LiveLog: LiveLogConfig{
			Enabled:     false,
			Host:        "localhost",
			Port:        6006,
			DialTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			Enabled:        true,
			EmbeddedServer: true,
			Host:           "127.0.0.1",
			Port:           4222,
			URL:            "nats://127.0.0.1:4222",
			Topic:          "switchboard.broadcast",
			DefaultCommand: "relay",
			QueueGroup:     "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration with precedence ENV > file > defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set via env.
var sliceConfigPaths = []string{
	"gateway.allowed_origins",
	"security.cors_origins",
	"oidc.scopes",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Server
	"http_host":        "server.host",
	"http_port":        "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"idle_timeout":     "server.idle_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Gateway
	"ws_ping_interval":    "gateway.ping_interval",
	"ws_write_wait":       "gateway.write_wait",
	"ws_max_message_size": "gateway.max_message_size",
	"ws_send_buffer":      "gateway.send_buffer",
	"ws_broadcast_buffer": "gateway.broadcast_buffer",
	"ws_allowed_origins":  "gateway.allowed_origins",

	// Session tokens and HTTP protection
	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.issuer",
	"jwt_expiration":      "security.token_expiration",
	"jwt_max_age":         "security.token_max_age",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"policy_model_path":   "security.policy_model_path",
	"policy_path":         "security.policy_path",

	// OIDC front door
	"oidc_issuer_url":     "oidc.issuer_url",
	"oidc_client_id":      "oidc.client_id",
	"oidc_client_secret":  "oidc.client_secret",
	"oidc_redirect_url":   "oidc.redirect_url",
	"oidc_scopes":         "oidc.scopes",
	"oidc_access_claim":   "oidc.access_claim",
	"oidc_default_access": "oidc.default_access",
	"post_login_url":      "oidc.post_login_url",

	// Live log feed
	"livelog_enabled":      "livelog.enabled",
	"livelog_host":         "livelog.host",
	"livelog_port":         "livelog.port",
	"livelog_dial_timeout": "livelog.dial_timeout",

	// Relay bus
	"relay_enabled":         "relay.enabled",
	"relay_embedded":        "relay.embedded_server",
	"relay_url":             "relay.url",
	"relay_host":            "relay.host",
	"relay_port":            "relay.port",
	"relay_topic":           "relay.topic",
	"relay_default_command": "relay.default_command",
	"relay_queue_group":     "relay.queue_group",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths. Unmapped
// variables return "" and are skipped by the env provider.
//
//   - JWT_SECRET -> security.jwt_secret
//   - WS_PING_INTERVAL -> gateway.ping_interval
//   - LIVELOG_HOST -> livelog.host
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
