// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package clientproxy implements the client-role half of the fabric: a
// plain-HTTP listener bound to the upstream's well-known port on
// localhost, forwarding every request to a chosen remote Server Proxy
// over TLS with the local identity injected. A restartable instance the
// Manager can bind, tear down, and rebind on failover.
package clientproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ollana/ollanad/pkg/auth"
	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// Proxy is a single Client Proxy instance bound to one remote server
// endpoint. Exactly one runs at a time, owned by the Manager.
type Proxy struct {
	endpoint string // remote Server Proxy's host:port
	injector *auth.Injector
	client   *http.Client

	bindAddr string
	server   *http.Server
	logger   zerolog.Logger
}

// Option customizes a Proxy at construction time.
type Option func(*Proxy)

// WithBindAddr overrides the default 127.0.0.1:11434 bind address.
// Intended for tests that cannot claim the well-known upstream port.
func WithBindAddr(addr string) Option {
	return func(p *Proxy) {
		p.bindAddr = addr
	}
}

// New constructs a Client Proxy that will forward to endpoint (a remote
// Server Proxy host:port) once run, injecting localIdentity on every
// outbound request.
func New(localIdentity, endpoint string, opts ...Option) *Proxy {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:        64,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec -- identity rides on the header, not the cert
	}

	p := &Proxy{
		endpoint: endpoint,
		injector: auth.NewInjector(localIdentity),
		client:   &http.Client{Transport: transport},
		bindAddr: fmt.Sprintf("%s:%d", ollanaconst.ClientProxyDefaultHost, ollanaconst.ClientProxyDefaultPort),
		logger:   log.With().Str("component", "clientproxy").Str("endpoint", endpoint).Logger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Endpoint reports the remote server this instance forwards to.
func (p *Proxy) Endpoint() string {
	return p.endpoint
}

// RunServer binds the listener, sends itself on ready once the bind has
// succeeded, then blocks until ctx is cancelled. Only the receiver of
// ready may call Stop — this avoids a race between spawning a
// replacement proxy and tearing down the old one during failover.
func (p *Proxy) RunServer(ctx context.Context, ready chan<- *Proxy) error {
	ln, err := net.Listen("tcp", p.bindAddr)
	if err != nil {
		return fmt.Errorf("bind client proxy %s: %w", p.bindAddr, err)
	}

	p.server = &http.Server{Handler: p.router()}

	select {
	case ready <- p:
	case <-ctx.Done():
		ln.Close()
		return ctx.Err()
	}

	p.logger.Info().Str("addr", p.bindAddr).Msg("client proxy listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.server.Shutdown(shutdownCtx)
	}()

	err = p.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the proxy down. graceful=true waits for in-flight requests;
// graceful=false closes the listener immediately.
func (p *Proxy) Stop(ctx context.Context, graceful bool) error {
	if p.server == nil {
		return nil
	}
	if graceful {
		return p.server.Shutdown(ctx)
	}
	return p.server.Close()
}

func (p *Proxy) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.HandleFunc("/*", p.handleForward)
	return r
}

// handleForward streams the inbound request to the chosen remote Server
// Proxy over TLS, injecting the identity header and forwarding bodies
// chunk-by-chunk in both directions.
func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	event := p.logger.With().Str("request_id", correlationID).Str("method", r.Method).Str("path", r.URL.Path).Logger()

	target := fmt.Sprintf("https://%s%s", p.endpoint, r.URL.Path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		event.Error().Err(err).Msg("build tunnel request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	upstreamReq.ContentLength = r.ContentLength

	if err := p.injector.Attach(upstreamReq); err != nil {
		event.Error().Err(err).Msg("attach identity header failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		event.Error().Err(err).Msg("tunnel request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		event.Error().Err(err).Msg("stream tunnel response failed")
	}
}
