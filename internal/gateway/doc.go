// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

// Package gateway implements the reference channel gateway: the
// authoritative side of the wire contract the delivery core speaks.
//
// The gateway owns three things per channel:
//
//   - Sequence assignment: every accepted send gets the next monotonic
//     seq. Client message IDs are remembered for a configurable window,
//     so a retransmitted send is re-acked with its original seq instead
//     of being appended twice.
//   - The channel log: an append-only, retention-bounded message log
//     (BadgerDB, or in-memory when no path is configured) serving the
//     REST backlog endpoint.
//   - Fan-out: a hub broadcasting each accepted message to every session
//     subscribed to the channel, in deterministic session order.
//
// Cross-node fan-out over NATS is available behind the "nats" build tag.
package gateway
