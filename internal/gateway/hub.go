// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/metrics"
	"github.com/shopwire/shopwire/internal/protocol"
)

// allocSweepPeriod bounds how often expired idempotency entries are
// reaped.
const allocSweepPeriod = 1 * time.Minute

// Publisher forwards locally accepted messages to other gateway nodes.
// Nil disables cross-node fan-out; see the nats build tag.
type Publisher interface {
	Publish(m *protocol.Message)
}

// inbound is one send frame read off a session, queued for the hub loop.
type inbound struct {
	sess *Session
	send protocol.Send
}

// Hub is the per-process message switch: it owns session membership per
// channel, assigns sequence numbers, appends to the log, acks the
// sender, and fans accepted messages out.
//
// All mutation happens on the Run loop goroutine. Selection is
// priority-ordered (shutdown, then membership, then traffic) so session
// state is always settled before a message is processed.
type Hub struct {
	log       Log
	alloc     *allocator
	publisher Publisher

	Register   chan *Session
	Unregister chan *Session
	ingest     chan inbound
	remote     chan *protocol.Message

	mu       sync.RWMutex
	channels map[string]map[*Session]bool
}

func NewHub(log Log, idempotencyWindow time.Duration) *Hub {
	return &Hub{
		log:        log,
		alloc:      newAllocator(idempotencyWindow),
		Register:   make(chan *Session),
		Unregister: make(chan *Session),
		ingest:     make(chan inbound, 256),
		remote:     make(chan *protocol.Message, 256),
		channels:   make(map[string]map[*Session]bool),
	}
}

// SetPublisher wires cross-node fan-out. Must be called before Run.
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Ingest queues a decoded send frame for processing. Called from session
// read pumps; drops with a warning when the hub is saturated rather than
// blocking the reader.
func (h *Hub) Ingest(sess *Session, s protocol.Send) {
	select {
	case h.ingest <- inbound{sess: sess, send: s}:
	default:
		logging.Warn().Str("channel", sess.channelID).Msg("hub ingest queue full, dropping send")
	}
}

// DeliverRemote queues a message received from another gateway node.
func (h *Hub) DeliverRemote(m *protocol.Message) {
	select {
	case h.remote <- m:
	default:
		logging.Warn().Str("channel", m.ChannelID).Msg("hub remote queue full, dropping message")
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// session and returns ctx.Err(). Designed for suture supervision: a
// restart reconstructs membership as sessions reconnect.
func (h *Hub) RunWithContext(ctx context.Context) error {
	sweep := time.NewTicker(allocSweepPeriod)
	defer sweep.Stop()

	for {
		// Priority 1: shutdown.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: membership changes settle before traffic.
		select {
		case sess := <-h.Register:
			h.register(sess)
			continue
		case sess := <-h.Unregister:
			h.unregister(sess)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case sess := <-h.Register:
			h.register(sess)
		case sess := <-h.Unregister:
			h.unregister(sess)
		case in := <-h.ingest:
			h.handleIngest(in)
		case m := <-h.remote:
			h.handleRemote(m)
		case now := <-sweep.C:
			h.alloc.sweep(now)
		}
	}
}

func (h *Hub) register(sess *Session) {
	h.mu.Lock()
	members, ok := h.channels[sess.channelID]
	if !ok {
		members = make(map[*Session]bool)
		h.channels[sess.channelID] = members
	}
	members[sess] = true
	count := len(members)
	h.mu.Unlock()

	// Seed the allocator from the log so seqs survive restarts.
	if mark, err := h.log.Watermark(sess.channelID); err == nil {
		h.alloc.seed(sess.channelID, mark)
	} else {
		logging.Error().Err(err).Str("channel", sess.channelID).Msg("watermark lookup failed")
	}

	metrics.GatewayConnections.WithLabelValues(sess.channelID).Set(float64(count))
	logging.Info().Str("channel", sess.channelID).Str("sender", sess.senderID).Int("sessions", count).Msg("session joined")
}

func (h *Hub) unregister(sess *Session) {
	h.mu.Lock()
	members, ok := h.channels[sess.channelID]
	removed := ok && members[sess]
	var count int
	if removed {
		delete(members, sess)
		close(sess.send)
		count = len(members)
		if count == 0 {
			delete(h.channels, sess.channelID)
		}
	}
	h.mu.Unlock()
	if !removed {
		// Already dropped by broadcast when its send buffer stalled.
		return
	}

	metrics.GatewayConnections.WithLabelValues(sess.channelID).Set(float64(count))
	logging.Info().Str("channel", sess.channelID).Str("sender", sess.senderID).Int("sessions", count).Msg("session left")
}

// handleIngest accepts one send: assign a seq (idempotently), append,
// ack the sender, broadcast. A duplicate retransmit is re-acked with its
// original seq and never re-appended or re-broadcast.
func (h *Hub) handleIngest(in inbound) {
	channelID := in.sess.channelID
	now := time.Now().UTC()

	seq, duplicate := h.alloc.assign(channelID, in.send.ID, now)
	if duplicate {
		in.sess.sendAck(in.send.ID, seq)
		return
	}

	sentAt := in.send.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	m := &protocol.Message{
		Seq:        seq,
		ChannelID:  channelID,
		ID:         in.send.ID,
		SenderID:   in.sess.senderID,
		SenderName: in.sess.senderName,
		Body:       in.send.Body,
		SentAt:     sentAt,
	}

	if _, err := h.log.Append(m); err != nil {
		logging.Error().Err(err).Str("channel", channelID).Int64("seq", seq).Msg("channel log append failed")
		// The seq is burned but the message is not acked; the client
		// retransmits and the idempotency table returns the same seq.
		return
	}

	in.sess.sendAck(m.ID, seq)
	h.broadcast(m)
	if h.publisher != nil {
		h.publisher.Publish(m)
	}
}

// handleRemote applies a message accepted by another node: append
// guarded by the watermark, then local fan-out only.
func (h *Hub) handleRemote(m *protocol.Message) {
	appended, err := h.log.Append(m)
	if err != nil {
		logging.Error().Err(err).Str("channel", m.ChannelID).Int64("seq", m.Seq).Msg("remote append failed")
		return
	}
	if !appended {
		return
	}
	h.alloc.seed(m.ChannelID, m.Seq)
	h.broadcast(m)
}

// broadcast fans one message out to the channel's sessions in session-ID
// order, so delivery order is reproducible. A session with a full send
// buffer is dropped; its read pump unregisters it.
func (h *Hub) broadcast(m *protocol.Message) {
	data, err := protocol.EncodeMessage(m)
	if err != nil {
		logging.Error().Err(err).Str("channel", m.ChannelID).Msg("encoding broadcast failed")
		return
	}

	h.mu.Lock()
	members := h.channels[m.ChannelID]
	sessions := make([]*Session, 0, len(members))
	for sess := range members {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })

	var stalled []*Session
	for _, sess := range sessions {
		select {
		case sess.send <- data:
		default:
			stalled = append(stalled, sess)
		}
	}
	for _, sess := range stalled {
		close(sess.send)
		delete(members, sess)
		logging.Warn().Str("channel", m.ChannelID).Str("sender", sess.senderID).Msg("session send buffer full, dropping session")
	}
	h.mu.Unlock()

	metrics.GatewayBroadcasts.WithLabelValues(m.ChannelID).Inc()
}

// SessionCount returns the number of sessions on a channel.
func (h *Hub) SessionCount(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	var closed int
	for channelID, members := range h.channels {
		sessions := make([]*Session, 0, len(members))
		for sess := range members {
			sessions = append(sessions, sess)
		}
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
		for _, sess := range sessions {
			close(sess.send)
			closed++
		}
		delete(h.channels, channelID)
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().Str("component", "gateway-hub").Str("reason", reason).Int("sessions_closed", closed).Msg("hub stopped")
}
