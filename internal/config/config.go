// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

// Package config holds all Shopwire configuration, loaded with Koanf v2 in
// three layers (highest priority wins):
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml)
//  3. Environment variables (CLIENT_GAP_TIMEOUT -> client.gap_timeout, etc.)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"time"
)

// Config is the root configuration for both the delivery core and the
// reference gateway.
type Config struct {
	Client   ClientConfig   `koanf:"client"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ClientConfig tunes the per-channel delivery core: transport endpoint,
// reconnect backoff, ordering-buffer policy, and outbound-queue policy.
type ClientConfig struct {
	// WSBase is the WebSocket base URL; a channel connects to {WSBase}/{channelID}.
	WSBase string `koanf:"ws_base" validate:"required,uri"`

	// HistoryBase is the REST base URL for the message backlog collaborator
	// (GET {HistoryBase}/api/v1/channels/{id}/messages?since=). Empty disables
	// backfill on connect.
	HistoryBase string `koanf:"history_base" validate:"omitempty,uri"`

	// BackoffBase is the first reconnect delay. Doubles per retry up to
	// BackoffCap, with ±BackoffJitter applied.
	BackoffBase   time.Duration `koanf:"backoff_base" validate:"gt=0"`
	BackoffFactor float64       `koanf:"backoff_factor" validate:"gte=1"`
	BackoffCap    time.Duration `koanf:"backoff_cap" validate:"gt=0"`

	// BackoffJitter is the jitter fraction applied to each delay (0.2 = ±20%).
	BackoffJitter float64 `koanf:"backoff_jitter" validate:"gte=0,lte=1"`

	// RetryCap is the consecutive-failure count after which ChannelUnavailable
	// is surfaced. Retries continue at the capped interval; the core never
	// gives up while a subscription exists.
	RetryCap int `koanf:"retry_cap" validate:"gt=0"`

	// GapTimeout bounds how long the ordering buffer holds out-of-order
	// frames before force-flushing with a gap marker.
	GapTimeout time.Duration `koanf:"gap_timeout" validate:"gt=0"`

	// ReorderCapacity bounds the per-channel ordering buffer.
	ReorderCapacity int `koanf:"reorder_capacity" validate:"gt=0"`

	// Retention bounds the per-channel delivery store ring.
	Retention int `koanf:"retention" validate:"gt=0"`

	// SendTimeout is how long an unacked outbound message stays pending
	// before it is failed.
	SendTimeout time.Duration `koanf:"send_timeout" validate:"gt=0"`

	// Token is the bearer token presented on connect and backfill requests.
	Token string `koanf:"token"`
}

// ServerConfig holds the gateway HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SecurityConfig holds gateway authentication and abuse limits.
type SecurityConfig struct {
	// JWTSecret signs and verifies channel bearer tokens. Required unless
	// AuthDisabled is set (development only).
	JWTSecret    string `koanf:"jwt_secret" validate:"required_unless=AuthDisabled true,omitempty,min=32"`
	AuthDisabled bool   `koanf:"auth_disabled"`

	// RateLimitReqs/RateLimitWindow bound REST requests per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gt=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// SendsPerSecond/SendBurst bound inbound sends per WebSocket connection.
	SendsPerSecond float64 `koanf:"sends_per_second" validate:"gt=0"`
	SendBurst      int     `koanf:"send_burst" validate:"gt=0"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// StoreConfig holds the gateway's persistent channel log settings.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty selects an in-memory store
	// (tests, ephemeral deployments).
	Path string `koanf:"path"`

	// RetentionPerChannel caps messages kept per channel; oldest are swept.
	RetentionPerChannel int `koanf:"retention_per_channel" validate:"gt=0"`

	// IdempotencyWindow bounds how long client message IDs are remembered
	// for duplicate-send detection.
	IdempotencyWindow time.Duration `koanf:"idempotency_window" validate:"gt=0"`
}

// NATSConfig enables cross-node channel fan-out (build tag "nats").
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url" validate:"required_if=Enabled true"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with production-ready defaults. The backoff
// and buffering defaults match the documented delivery-core policy: base 1s,
// factor 2, cap 30s, ±20% jitter, retry cap 10, gap timeout 5s, reorder
// buffer 100, retention 500, send timeout 10s.
func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			WSBase:          "ws://127.0.0.1:8490/ws",
			HistoryBase:     "http://127.0.0.1:8490",
			BackoffBase:     1 * time.Second,
			BackoffFactor:   2,
			BackoffCap:      30 * time.Second,
			BackoffJitter:   0.2,
			RetryCap:        10,
			GapTimeout:      5 * time.Second,
			ReorderCapacity: 100,
			Retention:       500,
			SendTimeout:     10 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8490,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			AuthDisabled:    false,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			SendsPerSecond:  20,
			SendBurst:       40,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Path:                "/data/shopwire/channels",
			RetentionPerChannel: 10000,
			IdempotencyWindow:   10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "shopwire.channel",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
