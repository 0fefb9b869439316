// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package manager implements the client-side state machine that owns
// the candidate server queue, the single active tunnel, and the
// handshake/liveness decisions that drive failover: a single owning
// goroutine fed by a command channel, the Go rendition of "many
// producers, one owner" in place of borrowed mutable state.
package manager

import (
	"context"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ollana/ollanad/pkg/allowlist"
	"github.com/ollana/ollanad/pkg/clientproxy"
	"github.com/ollana/ollanad/pkg/handshake"
	"github.com/ollana/ollanad/pkg/ollanaconst"
	"github.com/ollana/ollanad/pkg/upstream"
)

// commandKind distinguishes Add from Remove on the command channel.
type commandKind int

const (
	cmdAdd commandKind = iota
	cmdRemove
)

type command struct {
	kind commandKind
	addr netip.AddrPort
}

// activeTunnel bundles a running Client Proxy with the cancel func that
// tears down both it and its liveness task, per the "exists iff the
// queue's head is currently serving" invariant.
type activeTunnel struct {
	endpoint netip.AddrPort
	proxy    *clientproxy.Proxy
	cancel   context.CancelFunc
}

// Manager is the single-owner state machine for the client role. It
// must only be driven via its command channel — Run is the only
// goroutine allowed to touch queue/active.
type Manager struct {
	localIdentity string
	allowed       *allowlist.Store
	handshake     *handshake.Client
	prober        *upstream.Prober

	// newClientProxy builds the Client Proxy for a promoted candidate.
	// Overridden in tests so they don't have to bind the well-known
	// upstream port.
	newClientProxy func(localIdentity, endpoint string) *clientproxy.Proxy

	commands chan command

	queue  []netip.AddrPort
	active *activeTunnel

	logger zerolog.Logger
}

// New constructs a Manager. localIdentity is asserted during the
// handshake; allowed gates which remote identities are ever admitted to
// the candidate queue.
func New(localIdentity string, allowed *allowlist.Store) *Manager {
	return &Manager{
		localIdentity: localIdentity,
		allowed:       allowed,
		handshake:     handshake.NewClient(),
		prober:        upstream.NewInsecureProber(),
		newClientProxy: func(localIdentity, endpoint string) *clientproxy.Proxy {
			return clientproxy.New(localIdentity, endpoint)
		},
		commands: make(chan command, 32),
		logger:   log.With().Str("component", "manager").Logger(),
	}
}

// Add enqueues a candidate server discovered on the LAN. Safe to call
// from any goroutine (typically the discovery receive loop).
func (m *Manager) Add(ctx context.Context, addr netip.AddrPort) {
	select {
	case m.commands <- command{kind: cmdAdd, addr: addr}:
	case <-ctx.Done():
	}
}

// Remove drops a candidate, typically from a liveness task that just
// observed its server fail a probe.
func (m *Manager) Remove(ctx context.Context, addr netip.AddrPort) {
	select {
	case m.commands <- command{kind: cmdRemove, addr: addr}:
	case <-ctx.Done():
	}
}

// Run drains the command channel until ctx is cancelled, processing
// commands strictly in receive order. On return, any active tunnel and
// its liveness task have been torn down.
func (m *Manager) Run(ctx context.Context) error {
	defer m.teardownActive()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.commands:
			switch cmd.kind {
			case cmdAdd:
				m.handleAdd(ctx, cmd.addr)
			case cmdRemove:
				m.handleRemove(ctx, cmd.addr)
			}
		}
	}
}

func (m *Manager) contains(addr netip.AddrPort) bool {
	for _, existing := range m.queue {
		if existing == addr {
			return true
		}
	}
	return false
}

// handleAdd implements the Add(addr) transition: handshake, allow-list
// double-check, upstream reachability, then enqueue and promote if idle.
// Every failure is logged and the candidate silently dropped — the next
// discovery broadcast retries.
func (m *Manager) handleAdd(ctx context.Context, addr netip.AddrPort) {
	if m.contains(addr) {
		return
	}

	endpoint := addr.String()
	event := m.logger.With().Str("endpoint", endpoint).Logger()

	remoteIdentity, allowed, err := m.handshake.Authorize(ctx, endpoint, m.localIdentity)
	if err != nil {
		event.Warn().Err(err).Msg("handshake failed, dropping candidate")
		return
	}
	if !allowed {
		event.Debug().Msg("remote declined authorization, dropping candidate")
		return
	}
	if !m.allowed.IsAllowed(remoteIdentity) {
		event.Debug().Str("remote_identity", remoteIdentity).Msg("remote identity not allow-listed, dropping candidate")
		return
	}

	if _, err := m.prober.ProbeHostPort(ctx, "https", endpoint); err != nil {
		event.Warn().Err(err).Msg("upstream pass-through probe failed, dropping candidate")
		return
	}

	m.queue = append(m.queue, addr)
	event.Info().Msg("candidate admitted")

	if m.active == nil {
		m.promote(ctx, addr)
	}
}

// handleRemove implements the Remove(addr) transition: idempotent drop
// from the queue, tear down the active tunnel if it matches, and
// promote the new head if one remains.
func (m *Manager) handleRemove(ctx context.Context, addr netip.AddrPort) {
	m.queue = removeAddr(m.queue, addr)

	if m.active != nil && m.active.endpoint == addr {
		m.teardownActive()

		if len(m.queue) > 0 {
			m.promote(ctx, m.queue[0])
		}
	}
}

func removeAddr(queue []netip.AddrPort, addr netip.AddrPort) []netip.AddrPort {
	out := queue[:0]
	for _, existing := range queue {
		if existing != addr {
			out = append(out, existing)
		}
	}
	return out
}

// promote spawns a Client Proxy and liveness task for addr and records
// it as the active tunnel. Only called while no tunnel is active.
func (m *Manager) promote(parent context.Context, addr netip.AddrPort) {
	proxyCtx, cancel := context.WithCancel(parent)

	endpoint := addr.String()
	proxy := m.newClientProxy(m.localIdentity, endpoint)
	ready := make(chan *clientproxy.Proxy, 1)

	go func() {
		if err := proxy.RunServer(proxyCtx, ready); err != nil && proxyCtx.Err() == nil {
			m.logger.Error().Err(err).Str("endpoint", endpoint).Msg("client proxy exited unexpectedly")
		}
	}()

	select {
	case bound := <-ready:
		m.active = &activeTunnel{endpoint: addr, proxy: bound, cancel: cancel}
		m.logger.Info().Str("endpoint", endpoint).Msg("promoted candidate to active tunnel")
		go m.livenessTask(proxyCtx, addr)
	case <-parent.Done():
		cancel()
	}
}

// livenessTask probes the active server's upstream pass-through every
// LivenessProbeInterval, emitting Remove on the first failure.
func (m *Manager) livenessTask(ctx context.Context, addr netip.AddrPort) {
	ticker := time.NewTicker(ollanaconst.LivenessProbeInterval)
	defer ticker.Stop()

	endpoint := addr.String()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.prober.ProbeHostPort(ctx, "https", endpoint); err != nil {
				m.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("liveness probe failed")
				m.Remove(ctx, addr)
				return
			}
		}
	}
}

// teardownActive gracefully stops the active tunnel's Client Proxy and
// cancels its liveness task, clearing the active slot. Safe to call
// when no tunnel is active.
func (m *Manager) teardownActive() {
	if m.active == nil {
		return
	}

	active := m.active
	m.active = nil
	active.cancel()

	stopCtx, cancel := context.WithTimeout(context.Background(), ollanaconst.ProbeTimeout)
	defer cancel()
	if err := active.proxy.Stop(stopCtx, true); err != nil {
		m.logger.Warn().Err(err).Str("endpoint", active.endpoint.String()).Msg("graceful proxy stop failed")
	}
}

// ActiveEndpoint reports the currently active tunnel's endpoint, if any.
func (m *Manager) ActiveEndpoint() (netip.AddrPort, bool) {
	if m.active == nil {
		return netip.AddrPort{}, false
	}
	return m.active.endpoint, true
}

// QueueLen reports the number of candidates currently queued, active
// tunnel included.
func (m *Manager) QueueLen() int {
	return len(m.queue)
}
