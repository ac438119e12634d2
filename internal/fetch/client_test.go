package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(cfg Config) *Client {
	cfg.BackoffBase = time.Millisecond
	return NewClient(cfg, zerolog.Nop())
}

func TestClient_GetRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	client := newTestClient(Config{Retries: 2})

	body, err := client.Get(context.Background(), server.URL, Options{Kind: KindHTML})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q, want %q", body, "payload")
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestClient_GetExhaustsConfiguredRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(Config{Retries: 2})

	_, err := client.Get(context.Background(), server.URL, Options{Kind: KindHTML})
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Get() error = %v, want *Error", err)
	}
	if fetchErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", fetchErr.Attempts)
	}
	if fetchErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", fetchErr.Status, http.StatusInternalServerError)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestClient_GetRetryOverridePerRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// A generous client default that the per-request option must shadow.
	client := newTestClient(Config{Retries: 5})

	_, err := client.Get(context.Background(), server.URL, Options{Kind: KindHTML, Retries: 1})
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Get() error = %v, want *Error", err)
	}
	if fetchErr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", fetchErr.Attempts)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestClient_GetServesCacheHit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("cached body"))
	}))
	defer server.Close()

	client := newTestClient(Config{})

	for i := 0; i < 2; i++ {
		body, err := client.Get(context.Background(), server.URL, Options{Kind: KindHTML, UseCache: true})
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i+1, err)
		}
		if string(body) != "cached body" {
			t.Errorf("body = %q, want %q", body, "cached body")
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}
