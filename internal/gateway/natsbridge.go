// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

//go:build nats

package gateway

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/protocol"
)

// NATSBridge fans accepted messages out across gateway nodes: every
// local append is published to <prefix>.<channelID>, and messages from
// other nodes are handed to the hub's remote path, where the log
// watermark dedupes them.
type NATSBridge struct {
	nc     *nats.Conn
	prefix string
	sub    *nats.Subscription
	hub    *Hub
}

// NewNATSBridge connects to NATS and subscribes to the channel subject
// space. Returns nil without error when the bridge is disabled in
// configuration.
func NewNATSBridge(cfg config.NATSConfig, hub *Hub) (*NATSBridge, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("shopwire-gateway"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	b := &NATSBridge{nc: nc, prefix: cfg.SubjectPrefix, hub: hub}
	sub, err := nc.Subscribe(cfg.SubjectPrefix+".*", b.handleRemote)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s.*: %w", cfg.SubjectPrefix, err)
	}
	b.sub = sub

	logging.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("nats bridge connected")
	return b, nil
}

// Publish implements Publisher.
func (b *NATSBridge) Publish(m *protocol.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		logging.Error().Err(err).Str("channel", m.ChannelID).Msg("encoding message for nats failed")
		return
	}
	if err := b.nc.Publish(b.prefix+"."+m.ChannelID, data); err != nil {
		logging.Warn().Err(err).Str("channel", m.ChannelID).Msg("nats publish failed")
	}
}

func (b *NATSBridge) handleRemote(msg *nats.Msg) {
	var m protocol.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		logging.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable nats message")
		return
	}
	b.hub.DeliverRemote(&m)
}

// Close drains the subscription and disconnects.
func (b *NATSBridge) Close() {
	if b == nil {
		return
	}
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.nc.Close()
}
