// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/metrics"
)

// ErrUnauthorized rejects connections and REST requests whose bearer
// token is missing, expired, or signed with the wrong key.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the channel token payload. Subject identifies the sender;
// Name is the display name stamped onto broadcast messages.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type claimsContextKey struct{}

// ClaimsFromContext returns the verified claims attached by the auth
// middleware, or nil outside an authenticated request.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return c
}

// Verifier validates channel bearer tokens (HS256). With auth disabled
// it accepts everything and reports an anonymous identity; that mode is
// for development only and logged loudly at startup.
type Verifier struct {
	secret   []byte
	disabled bool
}

func NewVerifier(cfg config.SecurityConfig) *Verifier {
	return &Verifier{secret: []byte(cfg.JWTSecret), disabled: cfg.AuthDisabled}
}

// Verify parses and validates a bearer token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if v.disabled {
		return &Claims{Name: "anonymous", RegisteredClaims: jwt.RegisteredClaims{Subject: "anonymous"}}, nil
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}
	return claims, nil
}

// TokenFromRequest extracts the bearer token: Authorization header
// first, then the token query parameter (browser WebSocket clients
// cannot set headers).
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware enforces authentication on REST endpoints and attaches the
// verified claims to the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.Verify(TokenFromRequest(r))
		if err != nil {
			metrics.GatewayAuthFailures.Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims)))
	})
}
