// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"sort"

	"github.com/shopwire/shopwire/internal/protocol"
)

// acceptOutcome classifies what the sequencer did with an inbound frame,
// for metrics and logging.
type acceptOutcome int

const (
	outcomeDelivered acceptOutcome = iota
	outcomeBuffered
	outcomeDuplicate
)

func (o acceptOutcome) String() string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeBuffered:
		return "buffered"
	case outcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// seqResult is what a sequencer operation released: messages to deliver in
// order, and any gap markers to interleave before the message at the same
// index position. Gaps[i] precedes Deliver[i].
type seqResult struct {
	Deliver []*protocol.Message
	Gaps    []*Gap
}

func (r seqResult) empty() bool {
	return len(r.Deliver) == 0 && len(r.Gaps) == 0
}

// sequencer converts a possibly-reordered, possibly-duplicated frame
// stream into a gap-free logical stream for one channel.
//
// lastSeen is the high-water mark of contiguously released sequence
// numbers; expected delivery is always lastSeen+1. Frames at the expected
// seq are released immediately together with any now-contiguous buffered
// frames. Frames ahead of it are buffered up to capacity; frames at or
// below lastSeen are duplicates and dropped silently (expected
// at-least-once behavior, not an error).
//
// All methods are called from the owning channel's event loop only.
type sequencer struct {
	lastSeen int64
	buffer   map[int64]*protocol.Message
	capacity int

	// adopted tracks whether a baseline seq has been established. A fresh
	// sequencer joining mid-stream adopts the first frame it sees as the
	// baseline instead of buffering everything back to seq 1.
	adopted bool
}

func newSequencer(capacity int) *sequencer {
	return &sequencer{
		buffer:   make(map[int64]*protocol.Message),
		capacity: capacity,
	}
}

// advanceTo raises lastSeen (e.g. after a history backfill seeded the
// store). It never moves backward. Buffered frames that the new watermark
// makes contiguous are NOT released here; the caller drains via accept or
// flush.
func (s *sequencer) advanceTo(seq int64) {
	if seq > s.lastSeen {
		s.lastSeen = seq
		s.adopted = true
		for k := range s.buffer {
			if k <= seq {
				delete(s.buffer, k)
			}
		}
	}
}

// accept processes one inbound frame.
func (s *sequencer) accept(m *protocol.Message) (seqResult, acceptOutcome) {
	if s.adopted && m.Seq <= s.lastSeen {
		return seqResult{}, outcomeDuplicate
	}

	if !s.adopted {
		// First frame ever seen on this channel establishes the baseline.
		s.adopted = true
		s.lastSeen = m.Seq
		return seqResult{Deliver: []*protocol.Message{m}, Gaps: []*Gap{nil}}, outcomeDelivered
	}

	if m.Seq == s.lastSeen+1 {
		res := seqResult{Deliver: []*protocol.Message{m}, Gaps: []*Gap{nil}}
		s.lastSeen = m.Seq
		s.drainContiguous(&res)
		return res, outcomeDelivered
	}

	// Out of order: buffer until the hole fills, the gap timer fires, or
	// capacity forces a flush.
	if _, dup := s.buffer[m.Seq]; dup {
		return seqResult{}, outcomeDuplicate
	}
	s.buffer[m.Seq] = m
	if len(s.buffer) > s.capacity {
		return s.flush(), outcomeBuffered
	}
	return seqResult{}, outcomeBuffered
}

// pending reports whether out-of-order frames are being held, i.e. whether
// a gap timer should be armed.
func (s *sequencer) pending() bool {
	return len(s.buffer) > 0
}

// drainReady releases buffered frames that are now contiguous with
// lastSeen, e.g. after advanceTo raised the watermark.
func (s *sequencer) drainReady() seqResult {
	var res seqResult
	s.drainContiguous(&res)
	return res
}

// drainContiguous appends buffered frames to res for as long as the next
// expected seq is present.
func (s *sequencer) drainContiguous(res *seqResult) {
	for {
		m, ok := s.buffer[s.lastSeen+1]
		if !ok {
			return
		}
		delete(s.buffer, s.lastSeen+1)
		res.Gaps = append(res.Gaps, nil)
		res.Deliver = append(res.Deliver, m)
		s.lastSeen++
	}
}

// flush force-releases all buffered frames in sequence order, inserting a
// gap marker before each non-contiguous step. Called on gap timeout and on
// buffer overflow; afterwards the buffer is empty and lastSeen points at
// the highest released seq.
func (s *sequencer) flush() seqResult {
	if len(s.buffer) == 0 {
		return seqResult{}
	}

	seqs := make([]int64, 0, len(s.buffer))
	for k := range s.buffer {
		seqs = append(seqs, k)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var res seqResult
	for _, seq := range seqs {
		var g *Gap
		if seq != s.lastSeen+1 {
			g = &Gap{From: s.lastSeen + 1, To: seq - 1}
		}
		res.Gaps = append(res.Gaps, g)
		res.Deliver = append(res.Deliver, s.buffer[seq])
		s.lastSeen = seq
		delete(s.buffer, seq)
	}
	return res
}
