// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import "errors"

// ErrChannelClosed settles pending sends when a channel is disconnected
// while they are still in the outbound queue.
var ErrChannelClosed = errors.New("channel closed")

// ErrSendTimeout fails a transmitted send that received no ack within the
// configured send timeout. Failed sends are never retried automatically;
// retry is a deliberate caller action.
var ErrSendTimeout = errors.New("send timed out waiting for ack")

// ErrHistoryUnavailable is returned by backfill when the circuit breaker
// is open or the backlog endpoint cannot be reached.
var ErrHistoryUnavailable = errors.New("history backlog unavailable")
