// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

// Package main is the entry point for the Shopwire channel gateway.
//
// The gateway is the authoritative side of the Shopwire wire contract:
// it assigns per-channel sequence numbers, appends accepted messages to
// a retention-bounded channel log (BadgerDB), acks senders, and fans
// messages out to every WebSocket session on the channel. The REST
// surface serves the message backlog the delivery core uses to backfill
// on reconnect.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config.yaml, built-in
// defaults. Notable variables:
//
//	SERVER_PORT            listen port (default 8490)
//	SECURITY_JWT_SECRET    HS256 secret for channel tokens (32+ chars)
//	SECURITY_AUTH_DISABLED accept unauthenticated sessions (dev only)
//	STORE_PATH             BadgerDB directory; empty = in-memory log
//	NATS_ENABLED           cross-node fan-out (requires -tags nats)
//
// # Build Tags
//
//	go build -tags nats ./cmd/gateway   # enable the NATS bridge
//
// # Signal Handling
//
// SIGINT/SIGTERM shut the tree down gracefully: the HTTP server drains
// in-flight requests, the hub closes every session, and the channel log
// is closed last.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/gateway"
	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting shopwire gateway")
	if cfg.Security.AuthDisabled {
		logging.Warn().Msg("authentication is DISABLED - development mode only")
	}

	log, err := gateway.NewLog(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("opening channel log")
	}
	defer func() {
		if err := log.Close(); err != nil {
			logging.Error().Err(err).Msg("closing channel log")
		}
	}()

	hub := gateway.NewHub(log, cfg.Store.IdempotencyWindow)

	bridge, err := gateway.NewNATSBridge(cfg.NATS, hub)
	if err != nil {
		logging.Fatal().Err(err).Msg("starting nats bridge")
	}
	if bridge != nil {
		hub.SetPublisher(bridge)
		defer bridge.Close()
	}

	verifier := gateway.NewVerifier(cfg.Security)
	handler := gateway.NewHandler(hub, log, verifier, cfg.Security)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gateway.NewRouter(handler, cfg.Security),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(supervisor.NewRunnerService("gateway-hub", hub))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logging.Fatal().Err(err).Msg("supervisor tree exited")
	}
	logging.Info().Msg("shopwire gateway stopped")
}
