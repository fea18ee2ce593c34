package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/nimburion/mountsync/pkg/testutil"
)

func TestServer_StartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	log := testutil.NewMockLogger()
	s := NewServer(Config{Port: 0, ShutdownTimeout: time.Second}, handler, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}
	if !log.Has("server shutdown complete") {
		t.Fatal("expected shutdown to be logged")
	}
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	log := testutil.NewMockLogger()
	first := NewServer(Config{Port: 0}, http.NotFoundHandler(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = first.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for first.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	tcpAddr, ok := first.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address %T", first.Addr())
	}
	second := NewServer(Config{Port: tcpAddr.Port}, http.NotFoundHandler(), log)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected error when port is already bound")
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s := NewServer(Config{}, http.NotFoundHandler(), testutil.NewMockLogger())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown, got %v", err)
	}
}
