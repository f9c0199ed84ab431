// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

//go:build !nats

package gateway

import (
	"fmt"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/protocol"
)

// NATSBridge is a stub for builds without NATS support.
type NATSBridge struct{}

// NewNATSBridge returns an error when the bridge is enabled in a build
// compiled without the nats tag, nil-nil otherwise.
func NewNATSBridge(cfg config.NATSConfig, _ *Hub) (*NATSBridge, error) {
	if cfg.Enabled {
		return nil, fmt.Errorf("nats bridge enabled but binary built without nats support (build with -tags nats)")
	}
	return nil, nil
}

// Publish is a no-op stub.
func (b *NATSBridge) Publish(*protocol.Message) {}

// Close is a no-op stub.
func (b *NATSBridge) Close() {}
