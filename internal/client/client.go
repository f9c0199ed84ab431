// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

// Package client implements the channel delivery core: per-channel
// connection management with capped exponential backoff, sequence-ordered
// deduplicated delivery, bounded retention with replay, an idempotent
// outbound queue, and subscriber fan-out.
//
// One Client serves a whole application; each Connect returns a Channel
// session whose components run behind a single event loop, so callers
// observe a strictly ordered event stream per channel.
package client

import (
	"sync"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/logging"
)

// Client manages channel sessions. Connect is idempotent per channel ID:
// concurrent callers for the same channel share one session and one
// underlying connection.
type Client struct {
	cfg     config.ClientConfig
	history *historyClient

	mu       sync.Mutex
	channels map[string]*Channel
}

// New returns a Client for the given delivery-core configuration. An
// empty HistoryBase disables backlog backfill on connect.
func New(cfg config.ClientConfig) *Client {
	var history *historyClient
	if cfg.HistoryBase != "" {
		history = newHistoryClient(cfg.HistoryBase, cfg.Token)
	}
	return &Client{
		cfg:      cfg,
		history:  history,
		channels: make(map[string]*Channel),
	}
}

// Connect returns the session for channelID, creating it and starting its
// transport on first call. Subsequent calls for the same channel return
// the same session without touching the connection.
func (c *Client) Connect(channelID string) *Channel {
	c.mu.Lock()
	ch, ok := c.channels[channelID]
	if !ok {
		ch = newChannel(channelID, c.cfg, c.history)
		c.channels[channelID] = ch
		logging.Debug().Str("channel", channelID).Msg("channel session created")
	}
	c.mu.Unlock()

	ch.connect()
	return ch
}

// Channel returns the existing session for channelID, or nil if none.
func (c *Client) Channel(channelID string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channelID]
}

// Disconnect tears down the session for channelID. Pending sends fail
// with ErrChannelClosed; retained messages are discarded with the
// session. Unknown channel IDs and repeated calls are no-ops.
func (c *Client) Disconnect(channelID string) {
	c.mu.Lock()
	ch, ok := c.channels[channelID]
	if ok {
		delete(c.channels, channelID)
	}
	c.mu.Unlock()

	if ok {
		ch.close()
		logging.Debug().Str("channel", channelID).Msg("channel session closed")
	}
}

// Close tears down every session.
func (c *Client) Close() {
	c.mu.Lock()
	chans := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.channels = make(map[string]*Channel)
	c.mu.Unlock()

	for _, ch := range chans {
		ch.close()
	}
}
