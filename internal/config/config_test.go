// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.AuthDisabled = true // defaults ship without a JWT secret

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}

	if cfg.Client.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %s, want 1s", cfg.Client.BackoffBase)
	}
	if cfg.Client.RetryCap != 10 {
		t.Errorf("RetryCap = %d, want 10", cfg.Client.RetryCap)
	}
	if cfg.Client.ReorderCapacity != 100 {
		t.Errorf("ReorderCapacity = %d, want 100", cfg.Client.ReorderCapacity)
	}
	if cfg.Client.Retention != 500 {
		t.Errorf("Retention = %d, want 500", cfg.Client.Retention)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CLIENT_GAP_TIMEOUT", "2s")
	t.Setenv("CLIENT_RETRY_CAP", "3")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("SECURITY_AUTH_DISABLED", "true")
	t.Setenv("SECURITY_CORS_ORIGINS", "https://mes.example.com, https://ops.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Client.GapTimeout != 2*time.Second {
		t.Errorf("GapTimeout = %s, want 2s", cfg.Client.GapTimeout)
	}
	if cfg.Client.RetryCap != 3 {
		t.Errorf("RetryCap = %d, want 3", cfg.Client.RetryCap)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != "https://mes.example.com" {
		t.Errorf("CORSOrigins = %v, want two trimmed origins", cfg.Security.CORSOrigins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "zero retry cap",
			mutate:  func(c *Config) { c.Client.RetryCap = 0 },
			wantSub: "RetryCap",
		},
		{
			name:    "cap below base",
			mutate:  func(c *Config) { c.Client.BackoffCap = 100 * time.Millisecond },
			wantSub: "backoff_cap",
		},
		{
			name:    "reorder exceeds retention",
			mutate:  func(c *Config) { c.Client.ReorderCapacity = 1000 },
			wantSub: "reorder_capacity",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.AuthDisabled = false; c.Security.JWTSecret = "short" },
			wantSub: "JWTSecret",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantSub: "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.AuthDisabled = true
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"CLIENT_WS_BASE", "client.ws_base"},
		{"SECURITY_JWT_SECRET", "security.jwt_secret"},
		{"STORE_RETENTION_PER_CHANNEL", "store.retention_per_channel"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
