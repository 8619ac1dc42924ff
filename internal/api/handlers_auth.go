// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/validation"
)

const (
	anonymousSubject  = "0"
	anonymousUsername = "Anonymous"

	maxRefreshBody = 16 << 10
)

// Login starts the login flow.
//
// @Summary Start operator login
// @Description Redirects to the OIDC provider. Without a provider, development builds issue an anonymous session token.
// @Tags Auth
// @Success 302 "Redirect to provider or post-login page"
// @Failure 503 {object} APIResponse "Login not configured"
// @Router /auth/login [get]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.login != nil {
		http.Redirect(w, r, h.login.AuthorizationURL(), http.StatusFound)
		return
	}

	if h.config.Production {
		NewResponseWriter(w, r).ServiceUnavailable(ErrLoginDisabled.Error())
		return
	}

	h.completeLogin(w, r, &auth.Identity{
		SubjectID:   anonymousSubject,
		Username:    anonymousUsername,
		AccessLevel: h.config.DefaultAccess,
	})
}

// Callback completes the OIDC login and hands the session token to the page.
//
// @Summary OIDC callback
// @Tags Auth
// @Param code query string true "Authorization code"
// @Param state query string true "Login state"
// @Success 302 "Redirect to post-login page with token"
// @Failure 400 {object} APIResponse "Unknown or expired state"
// @Failure 401 {object} APIResponse "Code exchange failed"
// @Router /auth/callback [get]
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.login == nil {
		rw.Error(http.StatusNotFound, ErrCodeNotFound, ErrLoginDisabled.Error())
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		logging.Ctx(r.Context()).Warn().
			Str("error", providerErr).
			Str("description", q.Get("error_description")).
			Msg("Provider rejected login")
		rw.Unauthorized("login rejected by provider")
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		rw.BadRequest("code and state are required")
		return
	}

	identity, err := h.login.HandleCallback(r.Context(), code, state)
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		rw.BadRequest("invalid or expired login state")
		return
	case err != nil:
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Login callback failed")
		rw.Unauthorized("login failed")
		return
	}

	h.completeLogin(w, r, identity)
}

func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	token, err := h.tokens.Issue(id.SubjectID, id.Username, id.AccessLevel)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to issue session token")
		NewResponseWriter(w, r).InternalError("failed to issue session token")
		return
	}

	target, err := postLoginURL(h.config.PostLoginURL, token, id)
	if err != nil {
		NewResponseWriter(w, r).InternalError("invalid post-login URL")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("username", id.Username).
		Str("access", id.AccessLevel).
		Msg("Operator logged in")
	http.Redirect(w, r, target, http.StatusFound)
}

func postLoginURL(base, token string, id *auth.Identity) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("personid", id.SubjectID)
	q.Set("name", id.Username)
	q.Set("access", id.AccessLevel)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type refreshRequest struct {
	Token string `json:"token" validate:"required"`
}

type refreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Refresh exchanges a token inside its refresh window for a new one.
//
// @Summary Refresh session token
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} APIResponse{data=refreshResponse}
// @Failure 401 {object} APIResponse "Token cannot be refreshed"
// @Router /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRefreshBody)).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	token, session, err := h.tokens.Refresh(req.Token)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Token refresh rejected")
		rw.Unauthorized("token cannot be refreshed")
		return
	}

	rw.Success(refreshResponse{Token: token, ExpiresAt: session.ExpiresAt.UTC()})
}
