// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"testing"
)

func TestRouterFanOutInRegistrationOrder(t *testing.T) {
	r := newRouter()

	var order []string
	id1 := r.add(func(Event) { order = append(order, "first") })
	id2 := r.add(func(Event) { order = append(order, "second") })

	r.emit(Event{Kind: EventMessage})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("fan-out order = %v", order)
	}

	r.remove(id1)
	r.remove(id2)
	if r.count() != 0 {
		t.Errorf("count = %d after removes, want 0", r.count())
	}
}

func TestRouterRemoveIdempotent(t *testing.T) {
	r := newRouter()
	id := r.add(func(Event) {})
	r.remove(id)
	r.remove(id)  // repeated
	r.remove(999) // unknown
	if r.count() != 0 {
		t.Errorf("count = %d, want 0", r.count())
	}
}

func TestUnreadCounter(t *testing.T) {
	u := NewUnreadCounter()

	live := Event{Kind: EventMessage, Message: msg(1)}
	replayed := Event{Kind: EventMessage, Message: msg(2), Replayed: true}

	// Unfocused: live messages count, replays and non-message events don't.
	u.Observe(live)
	u.Observe(live)
	u.Observe(replayed)
	u.Observe(Event{Kind: EventState, State: StateOpen})
	if got := u.Count(); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}

	// Focused: nothing counts.
	u.SetFocused(true)
	u.Observe(live)
	if got := u.Count(); got != 2 {
		t.Errorf("Count = %d while focused, want 2", got)
	}

	// Only an explicit MarkRead resets.
	u.SetFocused(false)
	u.Observe(live)
	u.MarkRead()
	if got := u.Count(); got != 0 {
		t.Errorf("Count = %d after MarkRead, want 0", got)
	}
}
