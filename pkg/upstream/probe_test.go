// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package upstream

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestProbeSuccess(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/api/version" {
				t.Fatalf("expected path /api/version, got %s", req.URL.Path)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"version":"0.1.2"}`)),
			}, nil
		}),
	}

	prober := NewProberWithClient(client)

	v, err := prober.Probe(t.Context(), "http://127.0.0.1:11434")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if v.Version != "0.1.2" {
		t.Fatalf("unexpected version: %s", v.Version)
	}
}

func TestProbeFailsOnNonJSONBody(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("not json")),
			}, nil
		}),
	}

	prober := NewProberWithClient(client)

	if _, err := prober.Probe(t.Context(), "http://127.0.0.1:11434"); err == nil {
		t.Fatalf("expected an error for a non-JSON body")
	}
}

func TestProbeFailsOnErrorStatus(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		}),
	}

	prober := NewProberWithClient(client)

	if _, err := prober.Probe(t.Context(), "http://127.0.0.1:11434"); err == nil {
		t.Fatalf("expected an error for a 503 status")
	}
}
