// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/metrics"
	"github.com/shopwire/shopwire/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// sessionIDCounter assigns monotonic session IDs so broadcast iteration
// has a stable order.
var sessionIDCounter atomic.Uint64

// Session is one authenticated WebSocket connection bound to a single
// channel. The read pump decodes and rate-limits send frames before
// handing them to the hub; the write pump serializes all outbound
// traffic (broadcasts and acks) onto the socket.
type Session struct {
	id         uint64
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	channelID  string
	senderID   string
	senderName string
	limiter    *rate.Limiter
}

func NewSession(hub *Hub, conn *websocket.Conn, channelID string, claims *Claims, sendsPerSecond float64, burst int) *Session {
	return &Session{
		id:         sessionIDCounter.Add(1),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		channelID:  channelID,
		senderID:   claims.Subject,
		senderName: claims.Name,
		limiter:    rate.NewLimiter(rate.Limit(sendsPerSecond), burst),
	}
}

// Start registers the session with the hub and begins both pumps.
func (s *Session) Start() {
	s.hub.Register <- s
	go s.writePump()
	go s.readPump()
}

// sendAck queues an ack frame. Best-effort: a session that cannot keep
// up loses the ack and the client retransmits.
func (s *Session) sendAck(id string, seq int64) {
	data, err := protocol.EncodeAck(&protocol.Ack{Ack: id, Seq: seq})
	if err != nil {
		logging.Error().Err(err).Str("channel", s.channelID).Msg("encoding ack failed")
		return
	}
	select {
	case s.send <- data:
	default:
		logging.Warn().Str("channel", s.channelID).Str("id", id).Msg("session send buffer full, dropping ack")
	}
}

func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister <- s
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("channel", s.channelID).Msg("session read failed")
			}
			return
		}

		frame, err := protocol.DecodeSend(data)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				logging.Warn().Err(err).Str("channel", s.channelID).Msg("dropping malformed send")
				continue
			}
			return
		}
		// The session is bound to one channel; the frame's channelId
		// cannot redirect it.
		frame.ChannelID = s.channelID

		if !s.limiter.Allow() {
			metrics.GatewaySendRateLimited.WithLabelValues(s.channelID).Inc()
			logging.Warn().Str("channel", s.channelID).Str("sender", s.senderID).Msg("send rate limited")
			continue
		}
		s.hub.Ingest(s, frame)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// Hub closed the session.
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Warn().Err(err).Str("channel", s.channelID).Msg("session write failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
