// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/metrics"
	"github.com/shopwire/shopwire/internal/protocol"
)

// cmdQueueDepth bounds the event-loop mailbox. Posts block briefly under
// burst rather than dropping work.
const cmdQueueDepth = 64

// Channel is one live channel session: connection lifecycle, ordering,
// retention, outbound queueing, and subscriber fan-out behind a single
// event loop. All component state is owned by the loop goroutine; the
// public methods post closures into it, so no component needs its own
// locking.
//
// A Channel is obtained from Client.Connect and remains valid until
// Client.Disconnect; after that every Send fails with ErrChannelClosed
// and Replay returns nil.
type Channel struct {
	id  string
	cfg config.ClientConfig

	cmds     chan func()
	loopDone chan struct{}

	conn    *connManager
	seqr    *sequencer
	store   *deliveryStore
	out     *outboundQueue
	rtr     *router
	history *historyClient

	// Loop-owned timers. One gap timer and one ack-deadline timer exist
	// per channel at most; rearming cancels the prior one.
	gapTimer    *time.Timer
	ackTimer    *time.Timer
	ackDeadline time.Time

	stopping bool
}

func newChannel(id string, cfg config.ClientConfig, history *historyClient) *Channel {
	c := &Channel{
		id:       id,
		cfg:      cfg,
		cmds:     make(chan func(), cmdQueueDepth),
		loopDone: make(chan struct{}),
		seqr:     newSequencer(cfg.ReorderCapacity),
		store:    newDeliveryStore(cfg.Retention),
		out:      newOutboundQueue(cfg.SendTimeout),
		rtr:      newRouter(),
		history:  history,
	}

	policy := newBackoffPolicy(cfg.BackoffBase, cfg.BackoffFactor, cfg.BackoffCap, cfg.BackoffJitter)
	c.conn = newConnManager(id, channelURL(cfg.WSBase, id, cfg.Token), nil, policy, cfg.RetryCap, c.post)
	c.conn.onOpen = c.handleOpen
	c.conn.onFrame = c.handleRawFrame
	c.conn.onStateChange = func(s ConnState) {
		c.rtr.emit(Event{Kind: EventState, ChannelID: c.id, State: s})
	}
	c.conn.onUnavailable = func() {
		c.rtr.emit(Event{Kind: EventUnavailable, ChannelID: c.id})
	}

	go c.run()
	return c
}

// channelURL builds the per-channel WebSocket endpoint. The token rides a
// query parameter because browser WebSocket clients cannot set headers.
func channelURL(base, channelID, token string) string {
	u := fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), url.PathEscape(channelID))
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// ID returns the channel identifier.
func (c *Channel) ID() string { return c.id }

func (c *Channel) run() {
	for fn := range c.cmds {
		fn()
		if c.stopping {
			break
		}
	}
	close(c.loopDone)
	// Closures that raced with shutdown still run; they observe stopping
	// and settle immediately instead of being dropped.
	for {
		select {
		case fn := <-c.cmds:
			fn()
		default:
			return
		}
	}
}

// post schedules fn onto the event loop. Returns false once the channel
// has shut down; the closure is then discarded.
func (c *Channel) post(fn func()) bool {
	select {
	case <-c.loopDone:
		return false
	default:
	}
	select {
	case c.cmds <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

// connect starts the transport. Idempotent; called by Client.Connect.
func (c *Channel) connect() {
	c.post(func() { c.conn.connect() })
}

// close tears the session down: the transport is released, timers are
// cancelled, and every unsettled send fails with ErrChannelClosed. Called
// by Client.Disconnect; safe to call more than once.
func (c *Channel) close() {
	c.post(func() {
		c.conn.disconnect()
		c.stopGapTimer()
		c.stopAckTimer()
		failed := c.out.failAll(ErrChannelClosed)
		for range failed {
			metrics.ClientSendsTotal.WithLabelValues(c.id, "failed").Inc()
		}
		metrics.ClientOutboundDepth.WithLabelValues(c.id).Set(0)
		c.stopping = true
	})
}

// Send enqueues a message and returns its handle immediately, so callers
// can render optimistically. The message is transmitted right away when
// the connection is open, otherwise it waits in FIFO order for the next
// open. The handle always reaches a terminal status: acked, timed out,
// or failed by channel close.
func (c *Channel) Send(body string) *PendingSend {
	p := newPendingSend(protocol.Send{
		ID:        uuid.NewString(),
		ChannelID: c.id,
		Body:      body,
		SentAt:    time.Now().UTC(),
	})
	posted := c.post(func() {
		if c.stopping {
			p.settle(SendFailed, 0, ErrChannelClosed)
			return
		}
		c.out.enqueue(p)
		metrics.ClientOutboundDepth.WithLabelValues(c.id).Set(float64(c.out.depth()))
		if c.conn.state == StateOpen {
			c.transmitSend(p)
		}
	})
	if !posted {
		p.settle(SendFailed, 0, ErrChannelClosed)
	}
	return p
}

// Subscribe registers fn for channel events. Retained messages are
// replayed to fn first (marked Replayed), then live events follow with no
// gap or overlap between the two phases. The returned function removes
// the registration; calling it repeatedly is harmless.
func (c *Channel) Subscribe(fn func(Event)) (unsubscribe func()) {
	var mu sync.Mutex
	var id uint64
	var removed bool

	c.post(func() {
		for _, m := range c.store.replay(0) {
			fn(Event{Kind: EventMessage, ChannelID: c.id, Message: m, Replayed: true})
		}
		mu.Lock()
		if !removed {
			id = c.rtr.add(fn)
		}
		mu.Unlock()
	})

	return func() {
		mu.Lock()
		removed = true
		regID := id
		mu.Unlock()
		if regID != 0 {
			c.rtr.remove(regID)
		}
	}
}

// Replay returns the retained messages with seq > since, oldest first.
// The result is a snapshot; a closed channel returns nil.
func (c *Channel) Replay(since int64) []*protocol.Message {
	res := make(chan []*protocol.Message, 1)
	if !c.post(func() { res <- c.store.replay(since) }) {
		return nil
	}
	select {
	case r := <-res:
		return r
	case <-c.loopDone:
		return nil
	}
}

// State returns the current connection state. A closed channel reports
// StateClosed.
func (c *Channel) State() ConnState {
	res := make(chan ConnState, 1)
	if !c.post(func() { res <- c.conn.state }) {
		return StateClosed
	}
	select {
	case s := <-res:
		return s
	case <-c.loopDone:
		return StateClosed
	}
}

// handleOpen runs on the loop whenever the transport (re)opens: drain the
// outbound queue in FIFO order, then backfill missed history.
func (c *Channel) handleOpen() {
	for _, p := range c.out.all() {
		c.transmitSend(p)
		if c.conn.state != StateOpen {
			// transmit failed and routed into backoff; the rest of the
			// queue waits for the next open.
			break
		}
	}
	c.startBackfill()
}

// transmitSend writes one outbound frame. The ack deadline is stamped on
// first transmit only, so a message queued while disconnected does not
// age before it ever hits the wire. A write failure leaves the send
// pending for the next open.
func (c *Channel) transmitSend(p *PendingSend) {
	data, err := protocol.EncodeSend(&p.frame)
	if err != nil {
		if c.out.fail(p.frame.ID, err) != nil {
			metrics.ClientSendsTotal.WithLabelValues(c.id, "failed").Inc()
		}
		return
	}
	c.out.markTransmitted(p, time.Now())
	// The deadline ticks even if the write fails below; the message was
	// handed to the transport once.
	_ = c.conn.transmit(data)
	c.syncAckTimer()
}

// startBackfill fetches the backlog above the store watermark on a helper
// goroutine and posts the result back. Failures are logged and dropped;
// live delivery does not depend on backfill.
func (c *Channel) startBackfill() {
	if c.history == nil {
		return
	}
	since := c.store.watermark()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyRequestTimeout)
		defer cancel()
		msgs, err := c.history.fetch(ctx, c.id, since)
		if err != nil {
			logging.Warn().Err(err).Str("channel", c.id).Int64("since", since).Msg("history backfill failed")
			return
		}
		if len(msgs) > 0 {
			c.post(func() { c.handleBacklog(msgs) })
		}
	}()
}

// handleBacklog seeds the store from a history fetch. Backlog messages
// are emitted as Replayed so they do not count as unread; the sequencer
// watermark advances past them so live frames resume contiguously.
func (c *Channel) handleBacklog(msgs []*protocol.Message) {
	for _, m := range msgs {
		if c.store.append(m) {
			c.seqr.advanceTo(m.Seq)
			c.rtr.emit(Event{Kind: EventMessage, ChannelID: c.id, Message: m, Replayed: true})
		}
	}
	c.deliver(c.seqr.drainReady())
	c.syncGapTimer()
}

func (c *Channel) handleRawFrame(data []byte) {
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		metrics.ClientFramesReceived.WithLabelValues(c.id, "malformed").Inc()
		logging.Warn().Err(err).Str("channel", c.id).Msg("dropping malformed frame")
		return
	}
	switch f.Kind {
	case protocol.KindAck:
		c.handleAck(f.Ack)
	case protocol.KindMessage:
		res, outcome := c.seqr.accept(f.Message)
		metrics.ClientFramesReceived.WithLabelValues(c.id, outcome.String()).Inc()
		c.deliver(res)
		c.syncGapTimer()
	}
}

func (c *Channel) handleAck(a *protocol.Ack) {
	if p := c.out.ack(a.Ack, a.Seq); p != nil {
		metrics.ClientSendsTotal.WithLabelValues(c.id, "acked").Inc()
	}
	metrics.ClientOutboundDepth.WithLabelValues(c.id).Set(float64(c.out.depth()))
	c.syncAckTimer()
}

// deliver appends released messages to the store and fans them out,
// interleaving gap markers where the sequencer skipped a range.
func (c *Channel) deliver(res seqResult) {
	for i, m := range res.Deliver {
		if g := res.Gaps[i]; g != nil {
			metrics.ClientGapsDetected.WithLabelValues(c.id).Inc()
			logging.Warn().Str("channel", c.id).Int64("from", g.From).Int64("to", g.To).Msg("sequence gap surfaced")
			c.rtr.emit(Event{Kind: EventGap, ChannelID: c.id, Gap: g})
		}
		if c.store.append(m) {
			c.rtr.emit(Event{Kind: EventMessage, ChannelID: c.id, Message: m})
		}
	}
}

// syncGapTimer arms the gap timer when out-of-order frames are being held
// and cancels it once the hole fills.
func (c *Channel) syncGapTimer() {
	if c.seqr.pending() {
		if c.gapTimer == nil {
			c.gapTimer = time.AfterFunc(c.cfg.GapTimeout, func() {
				c.post(c.fireGapTimeout)
			})
		}
		return
	}
	c.stopGapTimer()
}

func (c *Channel) fireGapTimeout() {
	c.gapTimer = nil
	if !c.seqr.pending() {
		return
	}
	logging.Info().Str("channel", c.id).Msg("gap timeout, force-flushing ordering buffer")
	c.deliver(c.seqr.flush())
}

func (c *Channel) stopGapTimer() {
	if c.gapTimer != nil {
		c.gapTimer.Stop()
		c.gapTimer = nil
	}
}

// syncAckTimer keeps a single timer armed at the earliest outstanding ack
// deadline.
func (c *Channel) syncAckTimer() {
	next := c.out.nextDeadline()
	if next.IsZero() {
		c.stopAckTimer()
		return
	}
	if c.ackTimer != nil && c.ackDeadline.Equal(next) {
		return
	}
	c.stopAckTimer()
	c.ackDeadline = next
	c.ackTimer = time.AfterFunc(time.Until(next), func() {
		c.post(c.fireSendTimeouts)
	})
}

func (c *Channel) fireSendTimeouts() {
	c.ackTimer = nil
	c.ackDeadline = time.Time{}
	expired := c.out.expire(time.Now())
	for _, p := range expired {
		metrics.ClientSendsTotal.WithLabelValues(c.id, "failed").Inc()
		logging.Warn().Str("channel", c.id).Str("id", p.frame.ID).Msg("send timed out waiting for ack")
	}
	metrics.ClientOutboundDepth.WithLabelValues(c.id).Set(float64(c.out.depth()))
	c.syncAckTimer()
}

func (c *Channel) stopAckTimer() {
	if c.ackTimer != nil {
		c.ackTimer.Stop()
		c.ackTimer = nil
	}
	c.ackDeadline = time.Time{}
}
