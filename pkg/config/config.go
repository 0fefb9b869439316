// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

const (
	envUpstreamHost     = "OLLANAD_UPSTREAM_HOST"
	envUpstreamPort     = "OLLANAD_UPSTREAM_PORT"
	envServerProxyHost  = "OLLANAD_SERVER_PROXY_HOST"
	envServerProxyPort  = "OLLANAD_SERVER_PROXY_PORT"
	envDiscoveryPort    = "OLLANAD_DISCOVERY_PORT"
	envDataDir          = "OLLANAD_DATA_DIR"
	envLogLevel         = "OLLANAD_LOG_LEVEL"
	envBroadcastTimeout = "OLLANAD_BROADCAST_INTERVAL"
	envLivenessInterval = "OLLANAD_LIVENESS_INTERVAL"

	defaultLogLevel = "info"
)

// Config captures ollanad's runtime settings, all read from environment
// variables with defaults drawn from pkg/ollanaconst. DiscoveryPort,
// BroadcastInterval and LivenessProbeInterval are loaded but not passed
// on: the discovery and manager packages use the ollanaconst values
// directly, so overriding them has no effect on a running daemon.
type Config struct {
	UpstreamHost    string
	UpstreamPort    int
	ServerProxyHost string
	ServerProxyPort int
	DiscoveryPort   int
	DataDir         string
	LogLevel        string

	BroadcastInterval     time.Duration
	LivenessProbeInterval time.Duration
}

// Load reads configuration from environment variables, falling back to
// the package defaults for anything unset or unparsable.
func Load() (Config, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve default data dir: %w", err)
	}

	cfg := Config{
		UpstreamHost:          getString(envUpstreamHost, ollanaconst.UpstreamDefaultHost),
		UpstreamPort:          getInt(envUpstreamPort, ollanaconst.UpstreamDefaultPort),
		ServerProxyHost:       getString(envServerProxyHost, ollanaconst.ServerProxyDefaultHost),
		ServerProxyPort:       getInt(envServerProxyPort, ollanaconst.ServerProxyDefaultPort),
		DiscoveryPort:         getInt(envDiscoveryPort, ollanaconst.DiscoveryPort),
		DataDir:               getString(envDataDir, dataDir),
		LogLevel:              strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		BroadcastInterval:     getDuration(envBroadcastTimeout, ollanaconst.ClientBroadcastInterval),
		LivenessProbeInterval: getDuration(envLivenessInterval, ollanaconst.LivenessProbeInterval),
	}

	return cfg, nil
}

// defaultDataDir places persisted state under the platform's per-user
// config directory, e.g. ~/.config/ollana on Linux.
func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, ollanaconst.DataDirName), nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
