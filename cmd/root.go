// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package cmd wires the ollanad cobra command tree: serve and the
// device subcommands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ollana/ollanad/pkg/allowlist"
	"github.com/ollana/ollanad/pkg/config"
	"github.com/ollana/ollanad/pkg/identity"
	"github.com/ollana/ollanad/pkg/ollanaconst"
)

var rootCmd = &cobra.Command{
	Use:   "ollanad",
	Short: "Transparent LAN fabric for a locally-expected inference endpoint",
}

// Execute runs the root command, returning any error from the selected
// subcommand. Callers should exit non-zero if it returns an error.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides OLLANAD_LOG_LEVEL)")
	rootCmd.AddCommand(serveCmd, deviceCmd)
}

// loadConfig reads the runtime configuration and applies any CLI-level
// log-level override before returning it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		cfg.LogLevel = override
	}

	return cfg, nil
}

// applyLogLevel configures the global zerolog logger from cfg.LogLevel.
func applyLogLevel(cfg config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.Logger = log.Level(level)
	return nil
}

// openIdentityStore ensures the data directory and the device key
// material exist, returning the identity store for the daemon's
// lifetime. The transport cert pair is created on demand by
// TransportTLSConfig.
func openIdentityStore(cfg config.Config) (*identity.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	store, err := identity.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	if err := store.EnsureDeviceKey(); err != nil {
		return nil, fmt.Errorf("ensure device key: %w", err)
	}

	return store, nil
}

// openAllowlist opens the persisted allow-list under cfg.DataDir.
func openAllowlist(cfg config.Config) (*allowlist.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	return allowlist.Open(cfg.DataDir, ollanaconst.AllowListFile)
}

func defaultPidPath(dataDir string) string {
	return filepath.Join(dataDir, "ollanad.pid")
}
