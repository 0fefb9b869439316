// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cmd

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ollana/ollanad/pkg/allowlist"
	"github.com/ollana/ollanad/pkg/config"
	"github.com/ollana/ollanad/pkg/daemonize"
	"github.com/ollana/ollanad/pkg/discovery"
	"github.com/ollana/ollanad/pkg/identity"
	"github.com/ollana/ollanad/pkg/manager"
	"github.com/ollana/ollanad/pkg/serverproxy"
	"github.com/ollana/ollanad/pkg/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ollanad daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolP("daemon", "d", false, "detach and run in the background")
	serveCmd.Flags().String("pid", "", "write the daemon's pid to this file (only meaningful with --daemon)")
	serveCmd.Flags().String("log-file", "", "redirect daemon output to this file (only meaningful with --daemon)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyLogLevel(cfg); err != nil {
		return err
	}

	daemon, _ := cmd.Flags().GetBool("daemon")
	if daemon {
		pidFile, _ := cmd.Flags().GetString("pid")
		if pidFile == "" {
			pidFile = defaultPidPath(cfg.DataDir)
		}
		logFile, _ := cmd.Flags().GetString("log-file")

		if err := daemonize.Daemonize(daemonize.Options{PidFile: pidFile, LogFile: logFile}); err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
	}

	identityStore, err := openIdentityStore(cfg)
	if err != nil {
		return err
	}

	localIdentity, err := identityStore.DeviceIdentity()
	if err != nil {
		return fmt.Errorf("read device identity: %w", err)
	}

	allowed, err := openAllowlist(cfg)
	if err != nil {
		return fmt.Errorf("open allow-list: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstreamURL := fmt.Sprintf("http://%s:%d", cfg.UpstreamHost, cfg.UpstreamPort)
	prober := upstream.NewProber()

	log.Info().Str("upstream", upstreamURL).Msg("probing local upstream to determine role")
	_, probeErr := prober.Probe(ctx, upstreamURL)

	var runErr error
	if probeErr == nil {
		log.Info().Msg("upstream reachable: starting server role")
		runErr = runServerRole(ctx, cfg, localIdentity, allowed, upstreamURL, identityStore)
	} else {
		log.Info().Err(probeErr).Msg("upstream unreachable: starting client role")
		runErr = runClientRole(ctx, cfg, localIdentity, allowed)
	}

	return runErr
}

func runServerRole(ctx context.Context, cfg config.Config, localIdentity string, allowed *allowlist.Store, upstreamURL string, identityStore *identity.Store) error {
	tlsConfig, err := identityStore.TransportTLSConfig()
	if err != nil {
		return fmt.Errorf("load transport tls config: %w", err)
	}

	device := &serverproxy.Device{Identity: localIdentity, Allowed: allowed}
	addr := fmt.Sprintf("%s:%d", cfg.ServerProxyHost, cfg.ServerProxyPort)

	proxy, err := serverproxy.New(device, upstreamURL, addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("construct server proxy: %w", err)
	}

	discoveryServer := discovery.NewServer(upstream.NewProber(), upstreamURL)

	ctx = withSignalCancellation(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- proxy.ListenAndServe(ctx) }()
	go func() { errCh <- discoveryServer.Run(ctx) }()

	return firstError(ctx, errCh, 2)
}

func runClientRole(ctx context.Context, cfg config.Config, localIdentity string, allowed *allowlist.Store) error {
	mgr := manager.New(localIdentity, allowed)
	discoveryClient := discovery.NewClient()

	found := make(chan netip.AddrPort, 32)

	ctx = withSignalCancellation(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- discoveryClient.Run(ctx, found) }()
	go func() { errCh <- mgr.Run(ctx) }()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case addr := <-found:
				mgr.Add(ctx, addr)
			}
		}
	}()

	return firstError(ctx, errCh, 2)
}

func withSignalCancellation(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-stop:
			log.Info().Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}

// firstError waits until ctx is cancelled (clean shutdown, nil), one of
// the n background tasks returns a non-nil error (returned), or all n
// have returned nil.
func firstError(ctx context.Context, errCh <-chan error, n int) error {
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				return err
			}
		}
	}
	return nil
}
