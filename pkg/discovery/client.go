// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// Client implements the client-role half of discovery: a
// periodic broadcaster plus a concurrent receiver that emits discovered
// server addresses (with the well-known proxy port substituted in) onto
// a channel for the Manager to consume.
type Client struct {
	broadcastPort int
	proxyPort     int
	interval      time.Duration
	magic         uint32

	logger zerolog.Logger
}

// NewClient constructs a Client Discovery loop broadcasting to the fixed
// discovery port and reporting candidates on proxyPort (the Server
// Proxy's well-known port).
func NewClient() *Client {
	return &Client{
		broadcastPort: ollanaconst.DiscoveryPort,
		proxyPort:     ollanaconst.ServerProxyDefaultPort,
		interval:      ollanaconst.ClientBroadcastInterval,
		magic:         ollanaconst.ProtoMagicNumber,
		logger:        log.With().Str("component", "discovery.client").Logger(),
	}
}

// Run binds an ephemeral broadcast-capable UDP socket, broadcasts the
// magic number every interval, and forwards any matching reply as a
// discovered candidate onto found. Blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context, found chan<- netip.AddrPort) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("bind client discovery socket: %w", err)
	}
	defer conn.Close()

	if err := setBroadcast(conn); err != nil {
		return fmt.Errorf("enable broadcast on discovery socket: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go c.receiveLoop(ctx, conn, found)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.broadcastOnce(conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.broadcastOnce(conn)
		}
	}
}

// setBroadcast enables SO_BROADCAST on conn so datagrams addressed to the
// limited broadcast address (255.255.255.255) are permitted. net.UDPConn
// exposes no higher-level knob for this, so it's set through SyscallConn,
// the standard way to reach a raw socket option from Go's net package.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}

	return sockErr
}

func (c *Client) broadcastOnce(conn *net.UDPConn) {
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: c.broadcastPort}
	n, err := conn.WriteToUDP(EncodeMagic(c.magic), dst)
	if err != nil {
		c.logger.Debug().Err(err).Msg("client discovery broadcast failed")
		return
	}
	c.logger.Debug().Int("bytes", n).Msg("client discovery broadcast sent")
}

func (c *Client) receiveLoop(ctx context.Context, conn *net.UDPConn, found chan<- netip.AddrPort) {
	buf := make([]byte, 64)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug().Err(err).Msg("client discovery read failed")
			continue
		}

		if !DecodeMagic(buf[:n], c.magic) {
			c.logger.Debug().Str("peer", addr.String()).Msg("dropped non-matching discovery reply")
			continue
		}

		peerIP, ok := netip.AddrFromSlice(addr.IP.To4())
		if !ok {
			c.logger.Debug().Str("peer", addr.String()).Msg("discovery reply from non-IPv4 peer")
			continue
		}

		candidate := netip.AddrPortFrom(peerIP, uint16(c.proxyPort))

		select {
		case found <- candidate:
		case <-ctx.Done():
			return
		}
	}
}
