package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"casechain.org/internal/fingerprint"
)

func TestHTTPClientAnchorAndRead(t *testing.T) {
	fp := fingerprint.Sum([]byte("exhibit-a"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/anchors":
			var req struct {
				RecordID    string `json:"record_id"`
				Fingerprint string `json:"fingerprint"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if req.RecordID != "ev-1" || req.Fingerprint != fp.String() {
				t.Fatalf("unexpected request: %+v", req)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"tx_ref": "tx-0001"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/anchors/tx-0001":
			_ = json.NewEncoder(w).Encode(map[string]string{"fingerprint": fp.String()})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ref, err := client.Anchor(context.Background(), "ev-1", fp)
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if ref != "tx-0001" {
		t.Fatalf("tx ref = %s", ref)
	}

	got, err := client.Read(context.Background(), ref)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.Equal(fp) {
		t.Fatalf("fingerprint = %s, want %s", got, fp)
	}
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"tx_ref": "tx-retry"})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, WithRetry(3, time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ref, err := client.Anchor(context.Background(), "ev-1", fingerprint.Sum([]byte("x")))
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if ref != "tx-retry" {
		t.Fatalf("tx ref = %s", ref)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPClientExhaustedRetriesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Anchor(context.Background(), "ev-1", fingerprint.Sum([]byte("x"))); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestHTTPClientNotFoundIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, WithRetry(3, time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Read(context.Background(), "tx-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("404 was retried: calls = %d", calls.Load())
	}
}

func TestNewHTTPClientValidatesBase(t *testing.T) {
	if _, err := NewHTTPClient("  "); err == nil {
		t.Fatal("blank base accepted")
	}
	client, err := NewHTTPClient("http://ledger.example/")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.base != "http://ledger.example" {
		t.Fatalf("base = %q", client.base)
	}
}

func TestAnchorValidatesInput(t *testing.T) {
	client, err := NewHTTPClient("http://ledger.example")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Anchor(context.Background(), "", fingerprint.Sum([]byte("x"))); err == nil {
		t.Fatal("blank record id accepted")
	}
	if _, err := client.Read(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("zero ref: got %v", err)
	}
}
