// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

// Package metrics exposes Prometheus collectors for the delivery core and
// the gateway. All collectors are registered with the default registry via
// promauto and served from the gateway's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery core (client-side) metrics

	ClientConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopwire_client_connection_state",
			Help: "Connection state per channel (0=idle 1=connecting 2=open 3=backoff 4=closed)",
		},
		[]string{"channel"},
	)

	ClientReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_client_reconnect_attempts_total",
			Help: "Total reconnect attempts per channel",
		},
		[]string{"channel"},
	)

	ClientFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_client_frames_received_total",
			Help: "Inbound frames per channel by outcome",
		},
		[]string{"channel", "outcome"}, // delivered, buffered, duplicate, malformed
	)

	ClientGapsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_client_gaps_detected_total",
			Help: "Sequence gaps surfaced to subscribers per channel",
		},
		[]string{"channel"},
	)

	ClientOutboundDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopwire_client_outbound_queue_depth",
			Help: "Pending outbound messages per channel",
		},
		[]string{"channel"},
	)

	ClientSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_client_sends_total",
			Help: "Outbound sends per channel by terminal status",
		},
		[]string{"channel", "status"}, // acked, failed
	)

	ClientHistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_client_history_fetches_total",
			Help: "History backfill requests by outcome",
		},
		[]string{"outcome"}, // ok, error, breaker_open
	)

	// Gateway metrics

	GatewayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopwire_gateway_connections_active",
			Help: "Active WebSocket connections per channel",
		},
		[]string{"channel"},
	)

	GatewayBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_gateway_broadcasts_total",
			Help: "Messages broadcast to channel subscribers",
		},
		[]string{"channel"},
	)

	GatewaySeqAssigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_gateway_seq_assigned_total",
			Help: "Sequence numbers assigned per channel, including idempotent re-acks",
		},
		[]string{"channel", "outcome"}, // assigned, duplicate
	)

	GatewayStoreAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopwire_gateway_store_appends_total",
			Help: "Messages appended to the persistent channel log",
		},
	)

	GatewayStoreReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopwire_gateway_store_replays_total",
			Help: "Replay requests served from the channel log",
		},
	)

	GatewaySendRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopwire_gateway_sends_rate_limited_total",
			Help: "Inbound sends rejected by the per-connection rate limiter",
		},
		[]string{"channel"},
	)

	GatewayAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopwire_gateway_auth_failures_total",
			Help: "Rejected connection and REST attempts due to auth failure",
		},
	)
)

// ConnectionStateValue maps a connection state name to its gauge value.
// Kept here so dashboards and the client package agree on the encoding.
func ConnectionStateValue(state string) float64 {
	switch state {
	case "idle":
		return 0
	case "connecting":
		return 1
	case "open":
		return 2
	case "backoff":
		return 3
	case "closed":
		return 4
	default:
		return -1
	}
}
