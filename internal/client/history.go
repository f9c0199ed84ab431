// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shopwire/shopwire/internal/metrics"
	"github.com/shopwire/shopwire/internal/protocol"
)

const historyRequestTimeout = 10 * time.Second

// historyClient fetches the message backlog from the gateway's REST
// collaborator (GET /api/v1/channels/{id}/messages?since=) to seed the
// delivery store on connect. Fetches are wrapped in a circuit breaker so a
// down backlog endpoint cannot stall every reconnect; a failed backfill is
// non-fatal and live delivery proceeds without it.
type historyClient struct {
	base    string
	token   string
	hc      *http.Client
	breaker *gobreaker.CircuitBreaker[[]*protocol.Message]
}

func newHistoryClient(base, token string) *historyClient {
	settings := gobreaker.Settings{
		Name:    "history-backlog",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &historyClient{
		base:    base,
		token:   token,
		hc:      &http.Client{Timeout: historyRequestTimeout},
		breaker: gobreaker.NewCircuitBreaker[[]*protocol.Message](settings),
	}
}

// fetch returns the ordered backlog of messages with seq > since.
func (h *historyClient) fetch(ctx context.Context, channelID string, since int64) ([]*protocol.Message, error) {
	msgs, err := h.breaker.Execute(func() ([]*protocol.Message, error) {
		return h.doFetch(ctx, channelID, since)
	})
	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		metrics.ClientHistoryFetches.WithLabelValues("breaker_open").Inc()
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	case err != nil:
		metrics.ClientHistoryFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	metrics.ClientHistoryFetches.WithLabelValues("ok").Inc()
	return msgs, nil
}

func (h *historyClient) doFetch(ctx context.Context, channelID string, since int64) ([]*protocol.Message, error) {
	u := fmt.Sprintf("%s/api/v1/channels/%s/messages?since=%d", h.base, url.PathEscape(channelID), since)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("backlog fetch returned %d: %s", resp.StatusCode, body)
	}

	var msgs []*protocol.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decoding backlog: %w", err)
	}
	return msgs, nil
}
