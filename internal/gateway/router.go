// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopwire/shopwire/internal/config"
)

// NewRouter wires the gateway's HTTP surface.
//
// The WebSocket attach point does its own token check (the upgrade
// response must stay clean), so only the REST routes sit behind the auth
// middleware.
func NewRouter(h *Handler, security config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: security.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ws/{channelID}", h.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(security.RateLimitReqs, security.RateLimitWindow))
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(h.verifier.Middleware)
			r.Get("/channels/{channelID}/messages", h.History)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
