// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package handshake implements the mutual-identification POST: a client
// asserts its own identity via a header and learns the remote's
// identity from the response body, or learns it has been rejected via
// a 401.
package handshake

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ollana/ollanad/pkg/auth"
	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// AuthorizationResponse carries the remote's identity, returned as JSON
// on a successful authorization.
type AuthorizationResponse struct {
	DeviceID string `json:"device_id"`
}

// Client performs the POST /ollana/api/authorize handshake against a
// remote Server Proxy. TLS verification is intentionally disabled: the
// self-signed cert carries no trust, only the header does.
type Client struct {
	http *http.Client
}

// NewClient builds a handshake Client with a short-timeout, accept-any-cert transport.
func NewClient() *Client {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
		TLSHandshakeTimeout: 3 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec -- identity rides on the header, not the cert
	}

	return &Client{
		http: &http.Client{
			Timeout:   ollanaconst.ProbeTimeout,
			Transport: transport,
		},
	}
}

// Authorize POSTs to https://endpoint/ollana/api/authorize with the local
// identity header and reports the remote identity on success, or
// ("", false, nil) if the remote denies us with a 401. A non-nil error
// means the exchange failed (transport error, a status other than 200 or
// 401, or an undecodable body), not a denial.
func (c *Client) Authorize(ctx context.Context, endpoint, localIdentity string) (remoteIdentity string, allowed bool, err error) {
	target := url.URL{
		Scheme: "https",
		Host:   endpoint,
		Path:   ollanaconst.AuthorizePath,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), nil)
	if err != nil {
		return "", false, fmt.Errorf("build authorize request: %w", err)
	}

	injector := auth.NewInjector(localIdentity)
	if err := injector.Attach(req); err != nil {
		return "", false, fmt.Errorf("attach identity header: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("authorize against %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		reason, _ := io.ReadAll(resp.Body)
		_ = reason // drained and discarded; the caller only sees allowed=false
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("authorize against %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var authResp AuthorizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", false, fmt.Errorf("decode authorize response: %w", err)
	}

	return authResp.DeviceID, true, nil
}
