// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopwire/shopwire/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret, subject, name string, expires time.Time) string {
	t.Helper()
	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	v := NewVerifier(config.SecurityConfig{JWTSecret: testSecret})

	tests := []struct {
		name    string
		token   string
		wantErr bool
		wantSub string
	}{
		{"valid", signToken(t, testSecret, "u1", "Asha", time.Now().Add(time.Hour)), false, "u1"},
		{"empty", "", true, ""},
		{"garbage", "not.a.token", true, ""},
		{"wrong secret", signToken(t, "another-secret-that-is-32-bytes!", "u1", "", time.Now().Add(time.Hour)), true, ""},
		{"expired", signToken(t, testSecret, "u1", "", time.Now().Add(-time.Hour)), true, ""},
		{"missing subject", signToken(t, testSecret, "", "", time.Now().Add(time.Hour)), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("Verify error = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if claims.Subject != tt.wantSub {
				t.Errorf("Subject = %q, want %q", claims.Subject, tt.wantSub)
			}
		})
	}
}

func TestVerifyDisabled(t *testing.T) {
	v := NewVerifier(config.SecurityConfig{AuthDisabled: true})
	claims, err := v.Verify("")
	if err != nil {
		t.Fatalf("Verify with auth disabled: %v", err)
	}
	if claims.Subject != "anonymous" {
		t.Errorf("Subject = %q, want anonymous", claims.Subject)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/line-a?token=query-token", nil)
	if got := TokenFromRequest(r); got != "query-token" {
		t.Errorf("query token = %q", got)
	}

	// Header wins over query parameter.
	r.Header.Set("Authorization", "Bearer header-token")
	if got := TokenFromRequest(r); got != "header-token" {
		t.Errorf("header token = %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	v := NewVerifier(config.SecurityConfig{JWTSecret: testSecret})
	var gotSub string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = ClaimsFromContext(r.Context()).Subject
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels/line-a/messages", nil)
	v.Middleware(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/channels/line-a/messages", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "u7", "", time.Now().Add(time.Hour)))
	v.Middleware(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
	if gotSub != "u7" {
		t.Errorf("claims subject = %q, want u7", gotSub)
	}
}
