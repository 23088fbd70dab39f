package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/zhouzirui/medichat/backend/internal/config"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger(config.LogConfig{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger(config.LogConfig{Level: "debug", Development: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
