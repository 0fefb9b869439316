// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package ollanaconst centralizes the well-known ports, protocol
// constants, and default intervals shared by every ollanad component.
package ollanaconst

import "time"

const (
	// UpstreamDefaultHost is the local inference server this daemon tunnels for.
	UpstreamDefaultHost = "127.0.0.1"
	// UpstreamDefaultPort is the well-known upstream port (e.g. an Ollama server).
	UpstreamDefaultPort = 11434

	// ServerProxyDefaultHost is the bind address for the TLS Server Proxy.
	ServerProxyDefaultHost = "0.0.0.0"
	// ServerProxyDefaultPort is the Server Proxy's HTTPS port.
	ServerProxyDefaultPort = 11435

	// ClientProxyDefaultHost binds the Client Proxy to localhost only.
	ClientProxyDefaultHost = "127.0.0.1"
	// ClientProxyDefaultPort matches UpstreamDefaultPort so local apps reach
	// the tunnel transparently.
	ClientProxyDefaultPort = UpstreamDefaultPort

	// DiscoveryPort is the fixed UDP port used for broadcast discovery.
	DiscoveryPort = 18433

	// ProtoMagicNumber is the 4-byte "LANA" magic framing every discovery
	// datagram must carry.
	ProtoMagicNumber uint32 = 0x4C414E41

	// ClientBroadcastInterval is how often a client host re-broadcasts its
	// discovery magic.
	ClientBroadcastInterval = 5 * time.Second

	// LivenessProbeInterval is how often both the Server Discovery loop and
	// the Manager's per-server liveness task probe /api/version.
	LivenessProbeInterval = 10 * time.Second

	// ProbeTimeout bounds a single upstream probe so liveness loops stay periodic.
	ProbeTimeout = 3 * time.Second

	// ProxyWorkerCount is the fixed worker pool size for the Server Proxy.
	ProxyWorkerCount = 2

	// HeaderDeviceID carries the sender's device identity on every proxied
	// and handshake request.
	HeaderDeviceID = "X-Ollana-Device-Id"

	// AuthorizePath is the Server Proxy's mutual-identification endpoint.
	AuthorizePath = "/ollana/api/authorize"

	// VersionPath is the upstream probe path, always authorized regardless
	// of identity.
	VersionPath = "/api/version"

	// DataDirName is the subdirectory created under the per-user config
	// directory (os.UserConfigDir) for all persisted ollanad state.
	DataDirName = "ollana"

	// DeviceCertFile and DeviceKeyFile hold the device identity material.
	DeviceCertFile = "device_cert.pem"
	DeviceKeyFile  = "device_key.pem"

	// TransportCertFile and TransportKeyFile hold the Server Proxy's HTTPS material.
	TransportCertFile = "http_server_cert.pem"
	TransportKeyFile  = "http_server_key.pem"

	// AllowListFile is the keyed TOML file persisting the allow-list.
	AllowListFile = "device_allowed.toml"
)
