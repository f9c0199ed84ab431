// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"github.com/shopwire/shopwire/internal/protocol"
)

// ConnState is the lifecycle state of a channel's transport connection.
// Exactly one connection exists per channel; only the connection manager
// mutates this state.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateClosed
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind discriminates events fanned out to channel subscribers.
type EventKind int

const (
	// EventMessage delivers one ordered, deduplicated message.
	EventMessage EventKind = iota

	// EventGap reports a sequence range that was skipped after the gap
	// timeout or a reorder-buffer overflow. Informational, not an error;
	// rendering ("missed messages") is the subscriber's choice.
	EventGap

	// EventState reports a connection state transition. Subscribers use
	// connecting/backoff for a transient "reconnecting" indicator.
	EventState

	// EventUnavailable fires once when the reconnect retry cap is hit.
	// The connection keeps retrying at the capped interval; a later
	// successful open is reported via EventState(open).
	EventUnavailable
)

// Gap identifies an unrecovered sequence range [From, To].
type Gap struct {
	From int64
	To   int64
}

// Event is the single type delivered to subscribers. The field matching
// Kind is set; others are zero.
type Event struct {
	Kind      EventKind
	ChannelID string
	Message   *protocol.Message
	Gap       *Gap
	State     ConnState

	// Replayed marks messages emitted from the delivery store during
	// subscription, as opposed to live deliveries.
	Replayed bool
}
