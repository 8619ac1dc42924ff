// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/switchboard/internal/config"
)

// Session is the identity decoded from a session token.
type Session struct {
	SubjectID   string
	Username    string
	AccessLevel string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Claims is the JWT payload of a session token.
type Claims struct {
	Username string `json:"username"`
	Access   string `json:"access"`
	jwt.RegisteredClaims
}

func (c *Claims) session() *Session {
	s := &Session{
		SubjectID:   c.Subject,
		Username:    c.Username,
		AccessLevel: c.Access,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// TokenService issues, verifies and refreshes session tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	maxAge     time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service from the security configuration.
//
// The secret is kept as []byte and tokens are signed with HS256. maxAge must
// exceed expiration, otherwise no expired token could ever be refreshed.
func NewTokenService(cfg *config.SecurityConfig) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("token issuer is required")
	}
	if cfg.TokenExpiration <= 0 {
		return nil, fmt.Errorf("token expiration must be positive")
	}
	if cfg.TokenMaxAge <= cfg.TokenExpiration {
		return nil, fmt.Errorf("token max age %v must exceed expiration %v", cfg.TokenMaxAge, cfg.TokenExpiration)
	}

	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		expiration: cfg.TokenExpiration,
		maxAge:     cfg.TokenMaxAge,
		now:        time.Now,
	}, nil
}

// Expiration returns the lifetime of newly issued tokens.
func (s *TokenService) Expiration() time.Duration {
	return s.expiration
}

// Issue signs a new session token valid for the configured expiration.
//
// Token claims:
//   - sub: subjectID
//   - username, access: operator identity and access level
//   - iss: configured issuer
//   - iat, nbf: now
//   - exp: now + expiration
//   - jti: random UUID
func (s *TokenService) Issue(subjectID, username, accessLevel string) (string, error) {
	now := s.now()
	claims := &Claims{
		Username: username,
		Access:   accessLevel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the
// decoded Session.
//
// Every failure is an *InvalidTokenError. A token that is well formed and
// correctly signed but past its expiry matches ErrTokenExpired, which the
// gateway uses to decide whether Refresh is worth attempting.
func (s *TokenService) Verify(tokenString string) (*Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && onlyExpired(err) {
			return nil, &InvalidTokenError{Reason: "expired", Err: fmt.Errorf("%w: %w", ErrTokenExpired, err)}
		}
		return nil, &InvalidTokenError{Reason: "verification failed", Err: err}
	}
	return claims.session(), nil
}

// Refresh exchanges a token, expired or not, for a new one carrying the same
// identity and a fresh expiry.
//
// Signature, algorithm and issuer are checked as in Verify. Expiry is
// ignored, but the token's iat must be younger than maxAge. The returned
// Session describes the new token.
func (s *TokenService) Refresh(tokenString string) (string, *Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", nil, &InvalidTokenError{Reason: "verification failed", Err: err}
	}

	if claims.Issuer != s.issuer {
		return "", nil, &InvalidTokenError{Reason: "verification failed", Err: jwt.ErrTokenInvalidIssuer}
	}
	if claims.IssuedAt == nil {
		return "", nil, &InvalidTokenError{Reason: "missing iat", Err: jwt.ErrTokenRequiredClaimMissing}
	}
	if age := s.now().Sub(claims.IssuedAt.Time); age >= s.maxAge {
		return "", nil, &InvalidTokenError{
			Reason: "refresh window closed",
			Err:    fmt.Errorf("%w: age %v, max %v", ErrTokenTooOld, age.Truncate(time.Second), s.maxAge),
		}
	}

	token, err := s.Issue(claims.Subject, claims.Username, claims.Access)
	if err != nil {
		return "", nil, err
	}
	session, err := s.Verify(token)
	if err != nil {
		return "", nil, err
	}
	return token, session, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

// onlyExpired reports whether err is a claims validation failure caused by
// expiry alone. Tokens that are also not yet valid or carry a future iat
// are not refresh candidates.
func onlyExpired(err error) bool {
	return !errors.Is(err, jwt.ErrTokenNotValidYet) &&
		!errors.Is(err, jwt.ErrTokenUsedBeforeIssued) &&
		!errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid)
}
