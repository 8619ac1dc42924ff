// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewChiMiddleware_DefaultConfig(t *testing.T) {
	m := NewChiMiddleware(nil)

	if m.config == nil {
		t.Fatal("config is nil")
	}
	// Secure by default: no origin is allowed until configured.
	if len(m.config.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want []", m.config.CORSAllowedOrigins)
	}
	if m.config.CORSMaxAge != 86400 {
		t.Errorf("CORSMaxAge = %d, want 86400", m.config.CORSMaxAge)
	}
	if m.config.RateLimitRequests != 100 || m.config.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 100/1m", m.config.RateLimitRequests, m.config.RateLimitWindow)
	}
}

func TestChiMiddleware_CORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantOrigin string
	}{
		{"wildcard", []string{"*"}, "https://example.com", "*"},
		{"specific origin reflected", []string{"https://ops.example.com"}, "https://ops.example.com", "https://ops.example.com"},
		{"disallowed origin", []string{"https://ops.example.com"}, "https://evil.example.com", ""},
		{"no origin header", []string{"*"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultChiMiddlewareConfig()
			cfg.CORSAllowedOrigins = tt.origins
			handler := NewChiMiddleware(cfg).CORS()(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestChiMiddleware_CORS_Preflight(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"*"}

	handlerCalled := false
	handler := NewChiMiddleware(cfg).CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/events", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK && w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 200 or 204", w.Code)
	}
	if handlerCalled {
		t.Error("Handler should not be called for OPTIONS preflight")
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods should be set")
	}
}

func TestChiMiddleware_RateLimit(t *testing.T) {
	tests := []struct {
		name        string
		disabled    bool
		wantOK      int
		wantLimited int
	}{
		{"enabled", false, 3, 2},
		{"disabled", true, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewChiMiddleware(&ChiMiddlewareConfig{
				RateLimitRequests: 3,
				RateLimitWindow:   time.Minute,
				RateLimitDisabled: tt.disabled,
			})
			handler := m.RateLimit()(okHandler())

			ok, limited := 0, 0
			for i := 0; i < 5; i++ {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = "192.168.1.1:12345"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					limited++
					if resp := decodeEnvelope(t, w); resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
						t.Errorf("limited response = %s", w.Body.String())
					}
				}
			}
			if ok != tt.wantOK || limited != tt.wantLimited {
				t.Errorf("ok=%d limited=%d, want %d/%d", ok, limited, tt.wantOK, tt.wantLimited)
			}
		})
	}
}

func TestChiMiddleware_RateLimit_DifferentIPs(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute})
	handler := m.RateLimit()(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", addr, w.Code)
		}
	}
}

func TestChiMiddleware_RateLimitAuth(t *testing.T) {
	handler := NewChiMiddleware(nil).RateLimitAuth()(okHandler())

	limited := false
	for i := 0; i <= RateLimitAuth.Requests; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
		req.RemoteAddr = "172.16.0.9:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Errorf("request %d should be limited", RateLimitAuth.Requests+1)
	}
}

func TestAPISecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		proto    string
		wantHSTS bool
	}{
		{"plain http", "", false},
		{"behind TLS proxy", "https", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			w := httptest.NewRecorder()
			APISecurityHeaders()(okHandler()).ServeHTTP(w, req)

			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("X-Content-Type-Options should be nosniff")
			}
			if w.Header().Get("X-Frame-Options") != "DENY" {
				t.Error("X-Frame-Options should be DENY")
			}
			if got := w.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS set = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	tokens := newTestTokens(t)
	valid := issue(t, tokens, "operator")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := RequireSession(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if s, ok := SessionFromContext(r.Context()); ok {
					got = s.AccessLevel
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && got != "operator" {
				t.Errorf("session access = %q, want operator", got)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tokens := newTestTokens(t)
	enforcer := newTestEnforcer(t)

	tests := []struct {
		name       string
		access     string
		object     string
		action     string
		wantStatus int
	}{
		{"guest cannot publish", "guest", authz.ObjectEvents, authz.ActionPublish, http.StatusForbidden},
		{"operator publishes", "operator", authz.ObjectEvents, authz.ActionPublish, http.StatusOK},
		{"operator cannot inspect", "operator", authz.ObjectGateway, authz.ActionInspect, http.StatusForbidden},
		{"admin inherits publish", "admin", authz.ObjectEvents, authz.ActionPublish, http.StatusOK},
		{"admin inspects", "admin", authz.ObjectGateway, authz.ActionInspect, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireSession(tokens)(RequirePermission(enforcer, tt.object, tt.action)(okHandler()))

			before := testutil.ToFloat64(metrics.AuthzDenials.WithLabelValues(tt.object))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+issue(t, tokens, tt.access))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			after := testutil.ToFloat64(metrics.AuthzDenials.WithLabelValues(tt.object))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			denied := tt.wantStatus == http.StatusForbidden
			if denied && after-before != 1 {
				t.Errorf("denial counter moved by %v, want 1", after-before)
			}
		})
	}
}

func TestRequirePermission_WithoutSession(t *testing.T) {
	handler := RequirePermission(newTestEnforcer(t), authz.ObjectEvents, authz.ActionPublish)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
