// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ollana/ollanad/pkg/ollanaconst"
	"github.com/ollana/ollanad/pkg/upstream"
)

// Server implements the server-role half of discovery: bind
// the fixed UDP port on all interfaces, run a liveness loop against the
// local upstream, and only echo the magic number back to a broadcaster
// while that upstream is reachable. When the upstream is down the server
// falls silent rather than nacking.
type Server struct {
	prober      *upstream.Prober
	upstreamURL string
	port        int
	magic       uint32

	mu    sync.RWMutex
	alive bool

	addrMu sync.RWMutex
	addr   *net.UDPAddr

	logger zerolog.Logger
}

// NewServer constructs a Server Discovery loop probing upstreamURL.
func NewServer(prober *upstream.Prober, upstreamURL string) *Server {
	return &Server{
		prober:      prober,
		upstreamURL: upstreamURL,
		port:        ollanaconst.DiscoveryPort,
		magic:       ollanaconst.ProtoMagicNumber,
		logger:      log.With().Str("component", "discovery.server").Logger(),
	}
}

// Addr reports the bound UDP address once Run has started listening, or
// nil beforehand. Useful in tests that bind an ephemeral port.
func (s *Server) Addr() *net.UDPAddr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Alive reports the last observed state of the local upstream.
func (s *Server) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alive
}

func (s *Server) setAlive(alive bool) {
	s.mu.Lock()
	changed := s.alive != alive
	s.alive = alive
	s.mu.Unlock()

	if changed {
		s.logger.Info().Bool("alive", alive).Msg("upstream liveness changed")
	}
}

// Run binds the discovery UDP socket and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.port})
	if err != nil {
		return fmt.Errorf("bind discovery udp port %d: %w", s.port, err)
	}
	defer conn.Close()

	s.addrMu.Lock()
	s.addr = conn.LocalAddr().(*net.UDPAddr)
	s.addrMu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go s.livenessLoop(ctx)

	s.logger.Info().Int("port", s.port).Msg("server discovery listening")

	buf := make([]byte, 64)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug().Err(err).Msg("discovery read failed")
			continue
		}

		if !DecodeMagic(buf[:n], s.magic) {
			s.logger.Debug().Str("peer", addr.String()).Msg("dropped non-matching discovery datagram")
			continue
		}

		if !s.Alive() {
			// Silent-when-dead: no ack, no nack.
			continue
		}

		if _, err := conn.WriteToUDP(EncodeMagic(s.magic), addr); err != nil {
			s.logger.Debug().Err(err).Str("peer", addr.String()).Msg("discovery reply failed")
		}
	}
}

func (s *Server) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(ollanaconst.LivenessProbeInterval)
	defer ticker.Stop()

	s.probeOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeOnce(ctx)
		}
	}
}

func (s *Server) probeOnce(ctx context.Context) {
	_, err := s.prober.Probe(ctx, s.upstreamURL)
	s.setAlive(err == nil)
}
