// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package handshake

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthorizeSuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ollanaconst.AuthorizePath {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get(ollanaconst.HeaderDeviceID); got != "local-id" {
			t.Fatalf("missing/incorrect identity header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AuthorizationResponse{DeviceID: "remote-id"})
	})

	client := NewClient()
	client.http.Transport.(*http.Transport).TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	remoteID, allowed, err := client.Authorize(t.Context(), srv.Listener.Addr().String(), "local-id")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed=true")
	}
	if remoteID != "remote-id" {
		t.Fatalf("expected remote id %q, got %q", "remote-id", remoteID)
	}
}

func TestAuthorizeRejection(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("not allowed"))
	})

	client := NewClient()

	remoteID, allowed, err := client.Authorize(t.Context(), srv.Listener.Addr().String(), "local-id")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if allowed {
		t.Fatalf("expected allowed=false")
	}
	if remoteID != "" {
		t.Fatalf("expected empty remote id on rejection, got %q", remoteID)
	}
}
