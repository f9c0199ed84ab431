// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"testing"
	"time"
)

func TestAllocatorMonotonicPerChannel(t *testing.T) {
	a := newAllocator(10 * time.Minute)
	now := time.Now()

	for want := int64(1); want <= 5; want++ {
		seq, dup := a.assign("line-a", string(rune('a'+want)), now)
		if dup || seq != want {
			t.Fatalf("assign #%d = (%d, %v), want (%d, false)", want, seq, dup, want)
		}
	}

	// Channels allocate independently.
	if seq, _ := a.assign("line-b", "a", now); seq != 1 {
		t.Errorf("line-b first seq = %d, want 1", seq)
	}
}

func TestAllocatorIdempotentWithinWindow(t *testing.T) {
	a := newAllocator(10 * time.Minute)
	now := time.Now()

	first, dup := a.assign("line-a", "msg-1", now)
	if dup {
		t.Fatal("first assignment reported duplicate")
	}

	// A retransmit gets the same seq back and burns nothing.
	again, dup := a.assign("line-a", "msg-1", now.Add(time.Second))
	if !dup || again != first {
		t.Errorf("retransmit = (%d, %v), want (%d, true)", again, dup, first)
	}
	next, dup := a.assign("line-a", "msg-2", now.Add(2*time.Second))
	if dup || next != first+1 {
		t.Errorf("next assignment = (%d, %v), want (%d, false)", next, dup, first+1)
	}
}

func TestAllocatorWindowExpiry(t *testing.T) {
	a := newAllocator(time.Minute)
	now := time.Now()

	first, _ := a.assign("line-a", "msg-1", now)

	// Outside the window the ID is forgotten and gets a fresh seq. The
	// client never retransmits that late, so this only bounds memory.
	later, dup := a.assign("line-a", "msg-1", now.Add(2*time.Minute))
	if dup || later == first {
		t.Errorf("post-window assignment = (%d, %v), want a fresh seq", later, dup)
	}
}

func TestAllocatorSweep(t *testing.T) {
	a := newAllocator(time.Minute)
	now := time.Now()
	a.assign("line-a", "old", now)
	a.assign("line-a", "fresh", now.Add(50*time.Second))

	a.sweep(now.Add(70 * time.Second))

	a.mu.Lock()
	_, oldKept := a.seen["line-a/old"]
	_, freshKept := a.seen["line-a/fresh"]
	a.mu.Unlock()
	if oldKept {
		t.Error("expired idempotency entry survived sweep")
	}
	if !freshKept {
		t.Error("live idempotency entry swept")
	}
}

func TestAllocatorSeed(t *testing.T) {
	a := newAllocator(time.Minute)
	a.seed("line-a", 41)

	if seq, _ := a.assign("line-a", "m", time.Now()); seq != 42 {
		t.Errorf("seq after seed(41) = %d, want 42", seq)
	}

	// Seeding backward is a no-op.
	a.seed("line-a", 10)
	if seq, _ := a.assign("line-a", "n", time.Now()); seq != 43 {
		t.Errorf("seq after backward seed = %d, want 43", seq)
	}
}
