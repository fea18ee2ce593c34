package adminclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newRouterServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, strings.TrimPrefix(srv.URL, "http://")
}

func TestHTTPClient_RefreshSuccess(t *testing.T) {
	var hits atomic.Int32
	_, addr := newRouterServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != DefaultRefreshPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	client, err := NewHTTPClient(addr, Config{Token: "s3cret"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	ok, err := client.Refresh(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if client.Address() != addr {
		t.Fatalf("unexpected address %q", client.Address())
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}
}

func TestHTTPClient_RefreshDeclined(t *testing.T) {
	_, addr := newRouterServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"store unavailable"}`))
	})

	client, _ := NewHTTPClient(addr, Config{}, nil)
	ok, err := client.Refresh(context.Background())
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got ok=%v err=%v", ok, err)
	}
}

func TestHTTPClient_EmptyBodyMeansSuccess(t *testing.T) {
	_, addr := newRouterServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client, _ := NewHTTPClient(addr, Config{}, nil)
	ok, err := client.Refresh(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
}

func TestHTTPClient_ServerErrorIsRemoteError(t *testing.T) {
	_, addr := newRouterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client, _ := NewHTTPClient(addr, Config{}, nil)
	ok, err := client.Refresh(context.Background())
	if ok || !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got ok=%v err=%v", ok, err)
	}
}

func TestHTTPClient_TimeoutIsRemoteError(t *testing.T) {
	_, addr := newRouterServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	client, _ := NewHTTPClient(addr, Config{Timeout: 30 * time.Millisecond}, nil)
	if _, err := client.Refresh(context.Background()); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote on timeout, got %v", err)
	}
}

func TestHTTPClient_CustomPathAndFullURL(t *testing.T) {
	srv, _ := newRouterServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/refresh" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	client, err := NewHTTPClient(srv.URL+"/", Config{RefreshPath: "v2/refresh"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if ok, err := client.Refresh(context.Background()); err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
}

func TestNewHTTPClient_RequiresAddress(t *testing.T) {
	if _, err := NewHTTPClient("  ", Config{}, nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestNewFactory_BuildsClients(t *testing.T) {
	factory := NewFactory(Config{}, nil)
	client, err := factory(context.Background(), "router-9:8111")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if client.Address() != "router-9:8111" {
		t.Fatalf("unexpected address %q", client.Address())
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
