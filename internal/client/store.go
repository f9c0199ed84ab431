// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"github.com/shopwire/shopwire/internal/protocol"
)

// deliveryStore is the authoritative append-only record of delivered
// messages for one channel, and the replay source for newly-mounted
// subscribers. Retention is a bounded ring: eviction drops the oldest
// entries, never the newest.
//
// The store re-checks the seq invariant on append even though the
// sequencer already filters duplicates; a second guard keeps the no-gaps
// invariant local to this type.
//
// All methods are called from the owning channel's event loop only;
// Replay returns a copy so callers can hold the result across loop ticks.
type deliveryStore struct {
	ring     []*protocol.Message
	start    int // index of oldest entry
	count    int
	lastSeen int64
}

func newDeliveryStore(capacity int) *deliveryStore {
	return &deliveryStore{ring: make([]*protocol.Message, capacity)}
}

// append stores m if m.Seq advances the watermark. Returns false for
// stale or duplicate messages.
func (s *deliveryStore) append(m *protocol.Message) bool {
	if s.lastSeen != 0 && m.Seq <= s.lastSeen {
		return false
	}

	idx := (s.start + s.count) % len(s.ring)
	if s.count == len(s.ring) {
		// Full: overwrite the oldest.
		s.ring[s.start] = m
		s.start = (s.start + 1) % len(s.ring)
	} else {
		s.ring[idx] = m
		s.count++
	}
	s.lastSeen = m.Seq
	return true
}

// replay returns all stored messages with seq > since, oldest first.
// The result is finite and restartable; it reflects only what this
// process has received.
func (s *deliveryStore) replay(since int64) []*protocol.Message {
	out := make([]*protocol.Message, 0, s.count)
	for i := 0; i < s.count; i++ {
		m := s.ring[(s.start+i)%len(s.ring)]
		if m.Seq > since {
			out = append(out, m)
		}
	}
	return out
}

// watermark returns the highest stored seq, 0 if nothing stored yet.
func (s *deliveryStore) watermark() int64 {
	return s.lastSeen
}

// size returns the number of retained messages.
func (s *deliveryStore) size() int {
	return s.count
}
