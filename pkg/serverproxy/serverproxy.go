// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package serverproxy implements the server-role half of the fabric:
// a TLS-terminated reverse proxy that authorizes every request by
// device identity, answers the /ollana/api/authorize handshake, and
// otherwise streams requests through to the local upstream. Same
// ServeHTTP/forwardRequest shape as an HMAC-signed reverse proxy,
// generalized to header-identity-gated traffic, with chi doing the
// routing a hand-rolled http.ServeMux dispatch otherwise would.
package serverproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/ollana/ollanad/pkg/allowlist"
	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// Device bundles the immutable identity + allow-list snapshot shared,
// read-only, by every request handler.
type Device struct {
	Identity string
	Allowed  *allowlist.Store
}

// Proxy is the Server Proxy HTTPS listener.
type Proxy struct {
	device      *Device
	client      *http.Client
	upstreamURL *url.URL
	sem         *semaphore.Weighted
	router      chi.Router
	logger      zerolog.Logger

	addr      string
	tlsConfig *tls.Config
}

// New constructs a Server Proxy bound to addr, terminating TLS with
// tlsConfig and forwarding to upstreamURL.
func New(device *Device, upstreamURL, addr string, tlsConfig *tls.Config) (*Proxy, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:        64,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	p := &Proxy{
		device:      device,
		client:      &http.Client{Transport: transport},
		upstreamURL: u,
		sem:         semaphore.NewWeighted(ollanaconst.ProxyWorkerCount),
		logger:      log.With().Str("component", "serverproxy").Logger(),
		addr:        addr,
		tlsConfig:   tlsConfig,
	}

	p.router = p.buildRouter()

	return p, nil
}

func (p *Proxy) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(p.workerPoolMiddleware)
	r.Use(p.authorizeMiddleware)
	r.Post(ollanaconst.AuthorizePath, p.handleAuthorize)
	r.HandleFunc("/*", p.handleForward)
	return r
}

// ListenAndServe binds the TLS listener and blocks until ctx is
// cancelled, at which point it shuts down gracefully.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:      p.addr,
		Handler:   p.router,
		TLSConfig: p.tlsConfig,
	}

	errCh := make(chan error, 1)
	go func() {
		p.logger.Info().Str("addr", p.addr).Msg("server proxy listening")
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// workerPoolMiddleware bounds concurrent request processing to
// ollanaconst.ProxyWorkerCount, a fixed-size worker pool rather than an
// unbounded goroutine-per-request fan-out.
func (p *Proxy) workerPoolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		defer p.sem.Release(1)

		next.ServeHTTP(w, r)
	})
}

// authorizeMiddleware implements the authorization predicate:
// /api/version is always allowed (probes), otherwise the request must
// carry an allow-listed X-Ollana-Device-Id.
func (p *Proxy) authorizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ollanaconst.VersionPath {
			next.ServeHTTP(w, r)
			return
		}

		deviceID := r.Header.Get(ollanaconst.HeaderDeviceID)
		if deviceID != "" && p.device.Allowed.IsAllowed(deviceID) {
			next.ServeHTTP(w, r)
			return
		}

		p.logger.Debug().Str("device_id", deviceID).Str("path", r.URL.Path).Msg("rejected unauthorized request")
		http.Error(w, "not authorized", http.StatusUnauthorized)
	})
}

// handleAuthorize answers /ollana/api/authorize. Reaching this handler
// means authorizeMiddleware already let the caller through, so the
// response is always the local identity.
func (p *Proxy) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"device_id":%q}`, p.device.Identity)
}

// handleForward is the default streaming forwarder: arbitrary
// verb/path/query is passed through to the local upstream, with both
// bodies chunk-forwarded end to end. Response headers beyond status are
// intentionally not copied, matching the minimal forwarding design.
func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	event := p.logger.With().Str("request_id", correlationID).Str("method", r.Method).Str("path", r.URL.Path).Logger()

	targetURL := *p.upstreamURL
	targetURL.Path = r.URL.Path
	targetURL.RawQuery = r.URL.RawQuery

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL.String(), r.Body)
	if err != nil {
		event.Error().Err(err).Msg("build upstream request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	upstreamReq.ContentLength = r.ContentLength

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		event.Error().Err(err).Msg("upstream request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		event.Error().Err(err).Msg("stream upstream response failed")
	}
}
