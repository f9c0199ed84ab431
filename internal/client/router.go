// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"sort"
	"sync"
	"sync/atomic"
)

// subscriberIDCounter generates unique IDs for subscribers so fan-out
// iterates in a deterministic registration order.
var subscriberIDCounter atomic.Uint64

// router fans delivered events out to UI subscribers (chat view, unread
// badge) without coupling them. Ownership is weak: the router holds a
// callback only for the registration's lifetime and never blocks teardown.
//
// emit is called from the owning channel's event loop only; subscribe and
// unsubscribe may be called from any goroutine (component mount/unmount),
// so the set is mutex-guarded.
type router struct {
	mu   sync.Mutex
	subs map[uint64]func(Event)
}

func newRouter() *router {
	return &router{subs: make(map[uint64]func(Event))}
}

// add registers a callback and returns its registration ID.
func (r *router) add(fn func(Event)) uint64 {
	id := subscriberIDCounter.Add(1)
	r.mu.Lock()
	r.subs[id] = fn
	r.mu.Unlock()
	return id
}

// remove drops a registration. Safe to call repeatedly and after channel
// teardown; unknown IDs are a no-op.
func (r *router) remove(id uint64) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// emit delivers an event to all current subscribers in registration order.
// Callbacks run on the event loop goroutine and must not block.
func (r *router) emit(e Event) {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// count returns the number of active registrations.
func (r *router) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// UnreadCounter is the notification-badge subscriber: it counts delivered
// messages while the view is not focused and resets on an explicit
// MarkRead. Focus is set by the UI, never inferred by the router.
type UnreadCounter struct {
	mu      sync.Mutex
	focused bool
	count   int
}

// NewUnreadCounter returns a counter in the unfocused state.
func NewUnreadCounter() *UnreadCounter {
	return &UnreadCounter{}
}

// Observe is the subscriber callback; register it with Channel.Subscribe.
// Replayed history does not count as unread.
func (u *UnreadCounter) Observe(e Event) {
	if e.Kind != EventMessage || e.Replayed {
		return
	}
	u.mu.Lock()
	if !u.focused {
		u.count++
	}
	u.mu.Unlock()
}

// SetFocused tells the counter whether the channel view is visible.
// Messages delivered while focused are not counted.
func (u *UnreadCounter) SetFocused(focused bool) {
	u.mu.Lock()
	u.focused = focused
	u.mu.Unlock()
}

// MarkRead resets the unread count to zero.
func (u *UnreadCounter) MarkRead() {
	u.mu.Lock()
	u.count = 0
	u.mu.Unlock()
}

// Count returns the current unread count.
func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}
