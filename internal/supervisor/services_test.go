// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRunner struct {
	started chan struct{}
}

func (f *fakeRunner) RunWithContext(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerService(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{})}
	svc := NewRunnerService("test-runner", runner)
	if svc.String() != "test-runner" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("runner never started")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type fakeHTTPServer struct {
	listenErr error
	serving   chan struct{}
	shutdown  chan struct{}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	close(f.serving)
	<-f.shutdown
	return errors.New("http: Server closed")
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	close(f.shutdown)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := &fakeHTTPServer{serving: make(chan struct{}), shutdown: make(chan struct{})}
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-srv.serving:
	case <-time.After(time.Second):
		t.Fatal("server never started")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHTTPServerServiceStartupFailure(t *testing.T) {
	srv := &fakeHTTPServer{listenErr: errors.New("bind: address already in use")}
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve returned nil for a failed listener")
	}
}
