// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

// Package protocol defines the JSON wire contract shared by the delivery
// core and the gateway.
//
// Three frame shapes travel over a channel's WebSocket:
//
//   - message:  {"seq": 7, "channelId": "c1", "id": "<uuid>", "senderId": "u1",
//     "senderName": "Asha", "body": "...", "sentAt": "<RFC3339>"}
//   - send:     {"id": "<uuid>", "channelId": "c1", "body": "..."} (client → server;
//     the server assigns seq and sender identity from the session)
//   - ack:      {"ack": "<uuid>", "seq": 7}
//
// Frames are self-describing: an object carrying "ack" is an ack, an object
// carrying "seq" is a broadcast message, an object carrying only "id" and
// "body" is a send. Decoding a corrupt frame returns ErrMalformedFrame; the
// caller drops the frame and keeps the connection alive.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrMalformedFrame is returned when a frame cannot be decoded or is
// missing required fields. Callers log and drop the frame; it is never a
// connection-fatal condition.
var ErrMalformedFrame = errors.New("malformed frame")

// Message is a channel message as broadcast by the gateway. Seq is the
// server-assigned per-channel monotonic sequence number; ID is the
// client-generated idempotency key.
type Message struct {
	Seq        int64     `json:"seq"`
	ChannelID  string    `json:"channelId"`
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// Send is a client-originated message before the gateway has accepted it.
// The gateway assigns Seq and the sender identity from the authenticated
// session; ID doubles as the idempotency key for retransmits.
type Send struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt,omitempty"`
}

// Ack confirms acceptance of a Send. Ack carries the original client ID and
// the seq the gateway assigned to it.
type Ack struct {
	Ack string `json:"ack"`
	Seq int64  `json:"seq"`
}

// FrameKind discriminates decoded inbound frames.
type FrameKind int

const (
	KindMessage FrameKind = iota
	KindAck
)

// Frame is a decoded inbound frame: exactly one of Message or Ack is set,
// according to Kind.
type Frame struct {
	Kind    FrameKind
	Message *Message
	Ack     *Ack
}

// probe is used to sniff the frame shape before committing to a type.
type probe struct {
	Ack *string `json:"ack"`
	Seq *int64  `json:"seq"`
	ID  string  `json:"id"`
}

// DecodeFrame decodes a raw inbound frame into a typed Frame.
// Returns ErrMalformedFrame (wrapped) for undecodable or incomplete input.
func DecodeFrame(data []byte) (Frame, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch {
	case p.Ack != nil:
		var a Ack
		if err := json.Unmarshal(data, &a); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if a.Ack == "" {
			return Frame{}, fmt.Errorf("%w: ack frame missing id", ErrMalformedFrame)
		}
		return Frame{Kind: KindAck, Ack: &a}, nil

	case p.Seq != nil:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if m.ChannelID == "" || m.ID == "" {
			return Frame{}, fmt.Errorf("%w: message frame missing channelId or id", ErrMalformedFrame)
		}
		return Frame{Kind: KindMessage, Message: &m}, nil

	default:
		return Frame{}, fmt.Errorf("%w: frame is neither message nor ack", ErrMalformedFrame)
	}
}

// DecodeSend decodes a client send frame on the gateway side.
func DecodeSend(data []byte) (Send, error) {
	var s Send
	if err := json.Unmarshal(data, &s); err != nil {
		return Send{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if s.ID == "" || s.ChannelID == "" {
		return Send{}, fmt.Errorf("%w: send frame missing id or channelId", ErrMalformedFrame)
	}
	return s, nil
}

// EncodeMessage serializes a broadcast message frame.
func EncodeMessage(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// EncodeSend serializes a client send frame.
func EncodeSend(s *Send) ([]byte, error) {
	return json.Marshal(s)
}

// EncodeAck serializes an ack frame.
func EncodeAck(a *Ack) ([]byte, error) {
	return json.Marshal(a)
}
