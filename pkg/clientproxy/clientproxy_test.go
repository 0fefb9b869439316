// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package clientproxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

func TestHandleForwardInjectsIdentityAndStreamsBody(t *testing.T) {
	var gotHeader string
	var gotBody string

	remote := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(ollanaconst.HeaderDeviceID)
		buf := make([]byte, 32)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte("remote-response"))
	}))
	defer remote.Close()

	p := New("local-device-id", remote.Listener.Addr().String())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("ping"))

	rec := httptest.NewRecorder()
	p.handleForward(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "remote-response" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if gotHeader != "local-device-id" {
		t.Fatalf("remote did not receive identity header, got %q", gotHeader)
	}
	if gotBody != "ping" {
		t.Fatalf("remote did not receive forwarded body, got %q", gotBody)
	}
}

func TestEndpointReportsConfiguredTarget(t *testing.T) {
	p := New("local-device-id", "198.51.100.7:11435")
	if got := p.Endpoint(); got != "198.51.100.7:11435" {
		t.Fatalf("unexpected endpoint: %s", got)
	}
}
