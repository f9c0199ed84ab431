// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"sync"
	"time"

	"github.com/shopwire/shopwire/internal/metrics"
)

// allocator hands out per-channel monotonic sequence numbers and makes
// assignment idempotent against retransmits: a client message ID seen
// within the idempotency window gets its original seq back instead of a
// new one. Clients retransmit unacked sends on every reconnect, so this
// table is what keeps the log duplicate-free.
type allocator struct {
	window time.Duration

	mu   sync.Mutex
	next map[string]int64
	seen map[string]seenEntry // key: channelID + "/" + messageID
}

type seenEntry struct {
	seq int64
	at  time.Time
}

func newAllocator(window time.Duration) *allocator {
	return &allocator{
		window: window,
		next:   make(map[string]int64),
		seen:   make(map[string]seenEntry),
	}
}

// seed raises the channel's next seq past an existing log watermark, so
// sequence numbers stay monotonic across gateway restarts.
func (a *allocator) seed(channelID string, watermark int64) {
	a.mu.Lock()
	if watermark+1 > a.next[channelID] {
		a.next[channelID] = watermark + 1
	}
	a.mu.Unlock()
}

// assign returns the seq for the given client message ID. A repeated ID
// inside the window reports duplicate=true with the originally assigned
// seq.
func (a *allocator) assign(channelID, messageID string, now time.Time) (seq int64, duplicate bool) {
	key := channelID + "/" + messageID

	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.seen[key]; ok && now.Sub(e.at) < a.window {
		metrics.GatewaySeqAssigned.WithLabelValues(channelID, "duplicate").Inc()
		return e.seq, true
	}

	seq = a.next[channelID]
	if seq == 0 {
		seq = 1
	}
	a.next[channelID] = seq + 1
	a.seen[key] = seenEntry{seq: seq, at: now}
	metrics.GatewaySeqAssigned.WithLabelValues(channelID, "assigned").Inc()
	return seq, false
}

// sweep drops idempotency entries older than the window. Called
// periodically from the hub loop.
func (a *allocator) sweep(now time.Time) {
	a.mu.Lock()
	for key, e := range a.seen {
		if now.Sub(e.at) >= a.window {
			delete(a.seen, key)
		}
	}
	a.mu.Unlock()
}
