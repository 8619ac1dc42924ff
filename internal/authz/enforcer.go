// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/switchboard/internal/cache"
	"github.com/tomtom215/switchboard/internal/metrics"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Actions and objects used by Switchboard.
const (
	ActionInvoke  = "invoke"
	ActionPublish = "publish"
	ActionInspect = "inspect"

	ObjectEvents  = "events"
	ObjectGateway = "gateway"
)

// CommandObject returns the policy object for a gateway command.
func CommandObject(name string) string {
	return "command:" + name
}

// Config selects the model and policy sources.
type Config struct {
	ModelPath  string
	PolicyPath string
	CacheTTL   time.Duration
	CacheSize  int
}

// Enforcer wraps a Casbin SyncedEnforcer with a decision cache.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    *cache.LRU[bool]
}

// NewEnforcer loads the model and policy. Empty or missing paths fall back
// to the embedded defaults.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" && fileExists(cfg.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &Enforcer{enforcer: enforcer, cache: cache.NewLRU[bool](cfg.CacheSize, cfg.CacheTTL)}, nil
}

func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Enforce reports whether subject may perform action on object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	key := decisionKey(subject, object, action)
	allowed, ok := e.cache.Get(key)
	if !ok {
		var err error
		allowed, err = e.enforcer.Enforce(subject, object, action)
		if err != nil {
			return false, fmt.Errorf("enforcement failed: %w", err)
		}
		e.cache.Add(key, allowed)
	}

	if !allowed {
		metrics.AuthzDenials.WithLabelValues(object).Inc()
	}
	return allowed, nil
}

// CanInvoke reports whether accessLevel may run the named gateway command.
func (e *Enforcer) CanInvoke(accessLevel, command string) (bool, error) {
	return e.Enforce(accessLevel, CommandObject(command), ActionInvoke)
}

// AddPolicy adds a rule at runtime and clears cached decisions.
func (e *Enforcer) AddPolicy(subject, object, action string) (bool, error) {
	added, err := e.enforcer.AddPolicy(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("failed to add policy: %w", err)
	}
	e.cache.Clear()
	return added, nil
}

func decisionKey(subject, object, action string) string {
	return subject + "\x00" + object + "\x00" + action
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
