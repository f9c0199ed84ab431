// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/protocol"
)

func testSecurity() config.SecurityConfig {
	return config.SecurityConfig{
		JWTSecret:       testSecret,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
		SendsPerSecond:  100,
		SendBurst:       100,
		CORSOrigins:     []string{"*"},
	}
}

type testGateway struct {
	srv *httptest.Server
	hub *Hub
	log Log
	sec config.SecurityConfig
}

func startGateway(t *testing.T, sec config.SecurityConfig) *testGateway {
	t.Helper()
	log := newMemoryLog(500)
	hub := NewHub(log, 10*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	verifier := NewVerifier(sec)
	handler := NewHandler(hub, log, verifier, sec)
	srv := httptest.NewServer(NewRouter(handler, sec))
	t.Cleanup(srv.Close)

	return &testGateway{srv: srv, hub: hub, log: log, sec: sec}
}

func (g *testGateway) dial(t *testing.T, channelID, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws/%s?token=%s", strings.TrimPrefix(g.srv.URL, "http"), channelID, token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v (resp: %+v)", url, err, resp)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		t.Fatalf("decoding frame %s: %v", data, err)
	}
	return f
}

func writeSend(t *testing.T, conn *websocket.Conn, id, channelID, body string) {
	t.Helper()
	data, err := protocol.EncodeSend(&protocol.Send{ID: id, ChannelID: channelID, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("writing send: %v", err)
	}
}

func TestGatewayAcksAndBroadcasts(t *testing.T) {
	g := startGateway(t, testSecurity())
	token := signToken(t, testSecret, "u1", "Asha", time.Now().Add(time.Hour))
	sender := g.dial(t, "line-a", token)
	watcherToken := signToken(t, testSecret, "u2", "Benoit", time.Now().Add(time.Hour))
	watcher := g.dial(t, "line-a", watcherToken)

	writeSend(t, sender, "msg-1", "line-a", "cell 4 starved")

	// The sender sees the ack first, then its own message broadcast.
	ack := readFrame(t, sender)
	if ack.Kind != protocol.KindAck || ack.Ack.Ack != "msg-1" || ack.Ack.Seq != 1 {
		t.Fatalf("sender frame = %+v, want ack msg-1 seq 1", ack)
	}
	echo := readFrame(t, sender)
	if echo.Kind != protocol.KindMessage || echo.Message.Seq != 1 {
		t.Fatalf("sender broadcast = %+v, want message seq 1", echo)
	}

	m := readFrame(t, watcher)
	if m.Kind != protocol.KindMessage {
		t.Fatalf("watcher frame kind = %v, want message", m.Kind)
	}
	if m.Message.Seq != 1 || m.Message.SenderID != "u1" || m.Message.SenderName != "Asha" || m.Message.Body != "cell 4 starved" {
		t.Errorf("broadcast = %+v, want seq 1 from u1/Asha", m.Message)
	}
}

func TestGatewayDuplicateSendReAckedNotRebroadcast(t *testing.T) {
	g := startGateway(t, testSecurity())
	token := signToken(t, testSecret, "u1", "", time.Now().Add(time.Hour))
	sender := g.dial(t, "line-a", token)
	watcher := g.dial(t, "line-a", signToken(t, testSecret, "u2", "", time.Now().Add(time.Hour)))

	writeSend(t, sender, "msg-1", "line-a", "first transmit")
	first := readFrame(t, sender) // ack
	readFrame(t, sender)          // own broadcast
	readFrame(t, watcher)         // broadcast

	// Retransmit after a simulated reconnect-with-unacked-send.
	writeSend(t, sender, "msg-1", "line-a", "first transmit")
	second := readFrame(t, sender)
	if second.Kind != protocol.KindAck || second.Ack.Seq != first.Ack.Seq {
		t.Fatalf("retransmit response = %+v, want re-ack with seq %d", second, first.Ack.Seq)
	}

	// No second broadcast reaches the watcher.
	_ = watcher.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := watcher.ReadMessage(); err == nil {
		t.Fatalf("watcher received a rebroadcast: %s", data)
	}

	// And the log holds exactly one message.
	msgs, err := g.log.Replay("line-a", 0)
	if err != nil || len(msgs) != 1 {
		t.Errorf("log Replay = (%d messages, %v), want exactly 1", len(msgs), err)
	}
}

func TestGatewayRejectsUnauthenticatedWebSocket(t *testing.T) {
	g := startGateway(t, testSecurity())
	url := fmt.Sprintf("ws%s/ws/line-a", strings.TrimPrefix(g.srv.URL, "http"))

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("unauthenticated dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}
	_ = resp.Body.Close()
}

func TestGatewayHistoryEndpoint(t *testing.T) {
	g := startGateway(t, testSecurity())
	token := signToken(t, testSecret, "u1", "", time.Now().Add(time.Hour))
	sender := g.dial(t, "line-a", token)

	for i := 1; i <= 3; i++ {
		writeSend(t, sender, fmt.Sprintf("msg-%d", i), "line-a", "body")
		readFrame(t, sender) // ack
		readFrame(t, sender) // broadcast
	}

	req, _ := http.NewRequest(http.MethodGet, g.srv.URL+"/api/v1/channels/line-a/messages?since=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("history status = %d: %s", resp.StatusCode, body)
	}

	var msgs []*protocol.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 2 || msgs[1].Seq != 3 {
		t.Errorf("history since=1 returned %d messages, want seqs [2 3]", len(msgs))
	}

	// Unauthenticated backlog requests are rejected.
	resp2, err := http.Get(g.srv.URL + "/api/v1/channels/line-a/messages")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated history status = %d, want 401", resp2.StatusCode)
	}
}

func TestGatewaySendRateLimit(t *testing.T) {
	sec := testSecurity()
	sec.SendsPerSecond = 0.001 // effectively: burst only
	sec.SendBurst = 1
	g := startGateway(t, sec)

	token := signToken(t, testSecret, "u1", "", time.Now().Add(time.Hour))
	sender := g.dial(t, "line-a", token)

	writeSend(t, sender, "msg-1", "line-a", "allowed")
	readFrame(t, sender) // ack
	readFrame(t, sender) // broadcast

	// The second send exceeds the burst and is dropped without an ack.
	writeSend(t, sender, "msg-2", "line-a", "limited")
	_ = sender.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := sender.ReadMessage(); err == nil {
		t.Fatalf("rate-limited send produced a frame: %s", data)
	}

	msgs, _ := g.log.Replay("line-a", 0)
	if len(msgs) != 1 {
		t.Errorf("log holds %d messages, want 1 (limited send appended)", len(msgs))
	}
}

func TestGatewayHealth(t *testing.T) {
	g := startGateway(t, testSecurity())
	resp, err := http.Get(g.srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}
