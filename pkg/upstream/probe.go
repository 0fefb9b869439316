// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package upstream provides the minimal HTTP client used to probe a local
// or remote inference server's /api/version endpoint. The
// same Prober is reused for mode detection at startup, the Server
// Discovery liveness loop, and the Manager's per-server liveness task.
package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// VersionResponse is the upstream's minimal self-description: success is
// any 2xx response whose body parses as {"version": "..."}.
type VersionResponse struct {
	Version string `json:"version"`
}

// Prober issues bounded-timeout GETs against /api/version.
type Prober struct {
	client *http.Client
}

// NewProber builds a Prober with a pooled-connection outbound client: a
// short dial timeout and an overall per-request deadline bounded by
// ollanaconst.ProbeTimeout so liveness loops stay periodic.
func NewProber() *Prober {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 2 * time.Second,
	}

	return &Prober{
		client: &http.Client{
			Timeout:   ollanaconst.ProbeTimeout,
			Transport: transport,
		},
	}
}

// NewProberWithClient allows tests to inject a fake transport.
func NewProberWithClient(client *http.Client) *Prober {
	return &Prober{client: client}
}

// NewInsecureProber builds a Prober that accepts self-signed certificates,
// for probing a remote Server Proxy's pass-through (peer
// identity rides on a header, not the cert, so TLS verification is
// intentionally disabled here exactly as it is in the Client Proxy and
// Handshake Client).
func NewInsecureProber() *Prober {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 2 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec -- peer identity is header-based, not certificate-based
	}

	return &Prober{
		client: &http.Client{
			Timeout:   ollanaconst.ProbeTimeout,
			Transport: transport,
		},
	}
}

// Probe performs a GET against scheme://host/api/version and reports
// success iff the response is 2xx with a parseable {"version": ...} body.
func (p *Prober) Probe(ctx context.Context, baseURL string) (*VersionResponse, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	u.Path = ollanaconst.VersionPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("probe %s: unexpected status %d", u.String(), resp.StatusCode)
	}

	var v VersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode version response: %w", err)
	}

	return &v, nil
}

// ProbeHostPort is a convenience wrapper for callers that have a
// host:port pair rather than a full URL, such as the Manager checking a
// candidate's endpoint through its Server Proxy.
func (p *Prober) ProbeHostPort(ctx context.Context, scheme, hostPort string) (*VersionResponse, error) {
	return p.Probe(ctx, fmt.Sprintf("%s://%s", scheme, hostPort))
}
