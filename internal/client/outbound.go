// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"sync"
	"time"

	"github.com/shopwire/shopwire/internal/protocol"
)

// SendStatus is the lifecycle of a locally originated message. Acked and
// Failed are terminal; every send eventually reaches one of them.
type SendStatus int

const (
	SendPending SendStatus = iota
	SendAcked
	SendFailed
)

// String implements fmt.Stringer.
func (s SendStatus) String() string {
	switch s {
	case SendPending:
		return "pending"
	case SendAcked:
		return "acked"
	case SendFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingSend is the caller-facing handle returned synchronously by Send,
// so the UI can render optimistically. Status transitions are observed via
// Done(); the handle is safe for concurrent reads.
type PendingSend struct {
	frame protocol.Send

	mu     sync.Mutex
	status SendStatus
	seq    int64
	err    error
	done   chan struct{}

	// deadline is set on first transmit; zero while never transmitted.
	// Owned by the channel event loop.
	deadline time.Time
}

func newPendingSend(frame protocol.Send) *PendingSend {
	return &PendingSend{frame: frame, done: make(chan struct{})}
}

// ID returns the client-generated idempotency key.
func (p *PendingSend) ID() string { return p.frame.ID }

// ChannelID returns the target channel.
func (p *PendingSend) ChannelID() string { return p.frame.ChannelID }

// Body returns the message body.
func (p *PendingSend) Body() string { return p.frame.Body }

// SentAt returns the client timestamp assigned at Send time.
func (p *PendingSend) SentAt() time.Time { return p.frame.SentAt }

// Done is closed when the send reaches a terminal status.
func (p *PendingSend) Done() <-chan struct{} { return p.done }

// Status returns the current status, the server-assigned seq (valid once
// acked), and the failure reason (set once failed).
func (p *PendingSend) Status() (SendStatus, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.seq, p.err
}

// settle moves the handle to a terminal status. Later calls are no-ops,
// so a late ack after a timeout cannot resurrect a failed send.
func (p *PendingSend) settle(status SendStatus, seq int64, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != SendPending {
		return false
	}
	p.status = status
	p.seq = seq
	p.err = err
	close(p.done)
	return true
}

// outboundQueue guarantees at-least-once delivery attempts for locally
// originated messages on one channel. Messages stay pending in FIFO order
// while the connection is not open, are (re)transmitted on open, and are
// settled by ack, timeout, or channel close.
//
// All methods are called from the owning channel's event loop only.
type outboundQueue struct {
	pending []*PendingSend
	byID    map[string]*PendingSend
	timeout time.Duration
}

func newOutboundQueue(timeout time.Duration) *outboundQueue {
	return &outboundQueue{byID: make(map[string]*PendingSend), timeout: timeout}
}

// enqueue appends a send in FIFO position.
func (q *outboundQueue) enqueue(p *PendingSend) {
	q.pending = append(q.pending, p)
	q.byID[p.frame.ID] = p
}

// depth returns the number of unsettled sends.
func (q *outboundQueue) depth() int {
	return len(q.pending)
}

// all returns the pending sends in FIFO order. Called when the connection
// (re)opens; retransmitting already-sent frames is safe because the
// gateway dedupes by message ID.
func (q *outboundQueue) all() []*PendingSend {
	out := make([]*PendingSend, len(q.pending))
	copy(out, q.pending)
	return out
}

// markTransmitted stamps the ack deadline on first transmit. Later
// retransmits keep the original deadline; the timeout clock starts when
// the message first hits the wire, not at enqueue.
func (q *outboundQueue) markTransmitted(p *PendingSend, now time.Time) {
	if p.deadline.IsZero() {
		p.deadline = now.Add(q.timeout)
	}
}

// ack settles the send with the given ID as acked. Returns the handle, or
// nil for unknown or already-settled IDs (duplicate acks are expected).
func (q *outboundQueue) ack(id string, seq int64) *PendingSend {
	p, ok := q.byID[id]
	if !ok {
		return nil
	}
	if !p.settle(SendAcked, seq, nil) {
		return nil
	}
	q.remove(id)
	return p
}

// fail settles a single send as failed with the given reason.
func (q *outboundQueue) fail(id string, err error) *PendingSend {
	p, ok := q.byID[id]
	if !ok {
		return nil
	}
	if !p.settle(SendFailed, 0, err) {
		return nil
	}
	q.remove(id)
	return p
}

// expire fails every transmitted send whose ack deadline has passed and
// returns them. Untransmitted sends (zero deadline) are left pending.
func (q *outboundQueue) expire(now time.Time) []*PendingSend {
	var expired []*PendingSend
	for _, p := range q.pending {
		if !p.deadline.IsZero() && now.After(p.deadline) {
			if p.settle(SendFailed, 0, ErrSendTimeout) {
				expired = append(expired, p)
			}
		}
	}
	for _, p := range expired {
		q.remove(p.frame.ID)
	}
	return expired
}

// nextDeadline returns the earliest ack deadline among transmitted sends,
// zero time if none. Used to arm a single timeout timer per channel.
func (q *outboundQueue) nextDeadline() time.Time {
	var next time.Time
	for _, p := range q.pending {
		if p.deadline.IsZero() {
			continue
		}
		if next.IsZero() || p.deadline.Before(next) {
			next = p.deadline
		}
	}
	return next
}

// failAll settles every remaining send as failed with the given reason.
// Called on disconnect so no send is ever lost silently.
func (q *outboundQueue) failAll(err error) []*PendingSend {
	var failed []*PendingSend
	for _, p := range q.pending {
		if p.settle(SendFailed, 0, err) {
			failed = append(failed, p)
		}
	}
	q.pending = q.pending[:0]
	q.byID = make(map[string]*PendingSend)
	return failed
}

func (q *outboundQueue) remove(id string) {
	delete(q.byID, id)
	for i, p := range q.pending {
		if p.frame.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
