// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/shopwire/shopwire/internal/protocol"
)

func TestHistoryFetch(t *testing.T) {
	var gotAuth, gotPath, gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotSince = r.URL.Query().Get("since")
		_ = json.NewEncoder(w).Encode([]*protocol.Message{msg(4), msg(5)})
	}))
	defer srv.Close()

	h := newHistoryClient(srv.URL, "tok-123")
	msgs, err := h.fetch(context.Background(), "line-a", 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 4 || msgs[1].Seq != 5 {
		t.Errorf("fetch returned %d messages, want seqs [4 5]", len(msgs))
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotPath != "/api/v1/channels/line-a/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotSince != "3" {
		t.Errorf("since = %q, want 3", gotSince)
	}
}

func TestHistoryBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHistoryClient(srv.URL, "")
	for i := 0; i < 3; i++ {
		if _, err := h.fetch(context.Background(), "line-a", 0); !errors.Is(err, ErrHistoryUnavailable) {
			t.Fatalf("fetch %d error = %v, want ErrHistoryUnavailable", i, err)
		}
	}

	// Breaker now open: the endpoint is not even contacted.
	var contacted bool
	srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	})
	if _, err := h.fetch(context.Background(), "line-a", 0); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("fetch with open breaker error = %v, want ErrHistoryUnavailable", err)
	}
	if contacted {
		t.Error("breaker open but the endpoint was contacted")
	}
}

func TestChannelBackfillsHistoryOnConnect(t *testing.T) {
	backlog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]*protocol.Message{msg(1), msg(2)})
	}))
	defer backlog.Close()

	g := newFakeGateway(t)
	events := make(chan Event, 256)
	ch := newChannel("line-a", testClientConfig(g.wsBase()), newHistoryClient(backlog.URL, ""))
	ch.Subscribe(func(e Event) { events <- e })
	ch.connect()
	t.Cleanup(ch.close)
	gc := g.accept(t)

	// Backlog arrives marked replayed so it does not count as unread.
	for _, want := range []int64{1, 2} {
		e := waitMessageSeq(t, events, want)
		if !e.Replayed {
			t.Errorf("backfilled seq %d not marked replayed", want)
		}
	}

	// Live delivery resumes contiguously after the backfill; a live
	// duplicate of backfilled history is dropped.
	gc.writeMessage(t, msg(1))
	gc.writeMessage(t, msg(3))
	e := waitMessageSeq(t, events, 3)
	if e.Replayed {
		t.Error("live delivery marked replayed")
	}

	msgs := ch.Replay(0)
	if len(msgs) != 3 {
		t.Errorf("Replay(0) returned %d messages after backfill, want 3", len(msgs))
	}
}
