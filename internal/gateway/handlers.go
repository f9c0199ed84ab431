// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/metrics"
)

// Handler carries the gateway's HTTP surface: the WebSocket attach
// point, the REST backlog endpoint, and health.
type Handler struct {
	hub      *Hub
	log      Log
	verifier *Verifier
	security config.SecurityConfig
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, log Log, verifier *Verifier, security config.SecurityConfig) *Handler {
	return &Handler{
		hub:      hub,
		log:      log,
		verifier: verifier,
		security: security,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS middleware on the
			// REST surface; WS clients include native apps without an
			// Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades GET /ws/{channelID} into a channel session.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		http.Error(w, "missing channel id", http.StatusBadRequest)
		return
	}

	claims, err := h.verifier.Verify(TokenFromRequest(r))
	if err != nil {
		metrics.GatewayAuthFailures.Inc()
		logging.Warn().Err(err).Str("channel", channelID).Msg("websocket auth rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Str("channel", channelID).Msg("websocket upgrade failed")
		return
	}

	sess := NewSession(h.hub, conn, channelID, claims, h.security.SendsPerSecond, h.security.SendBurst)
	sess.Start()
}

// History serves GET /api/v1/channels/{channelID}/messages?since={seq}:
// the backlog the delivery core uses to seed its store on connect.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		http.Error(w, "missing channel id", http.StatusBadRequest)
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	msgs, err := h.log.Replay(channelID, since)
	if err != nil {
		logging.Error().Err(err).Str("channel", channelID).Msg("backlog replay failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		logging.Warn().Err(err).Str("channel", channelID).Msg("writing backlog response failed")
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
