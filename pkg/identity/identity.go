// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package identity manages the self-signed certificate material ollanad
// uses for two distinct purposes: a long-lived device identity and the
// Server Proxy's HTTPS transport cert. A device's identity is a pure
// function of its private key: SHA-256 of the DER-encoded PKCS#8 bytes,
// lowercase hex.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// certValidity is generous since these certs are never trust-anchored;
// only the private key (and the identity derived from it) ever matters.
const certValidity = 10 * 365 * 24 * time.Hour

// keyFileMode: all key files are owner-read-only.
const keyFileMode = 0o400

// Store owns the on-disk directory holding both cert pairs.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore constructs a Store rooted at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		logger: log.With().Str("component", "identity").Logger(),
	}, nil
}

// EnsureDeviceKey ensures the device cert+key pair exists on disk. Idempotent.
func (s *Store) EnsureDeviceKey() error {
	return s.ensureX509(ollanaconst.DeviceCertFile, ollanaconst.DeviceKeyFile)
}

// EnsureTransportCert ensures the Server Proxy's HTTPS cert+key pair exists.
func (s *Store) EnsureTransportCert() error {
	return s.ensureX509(ollanaconst.TransportCertFile, ollanaconst.TransportKeyFile)
}

// DeviceIdentity reads the PKCS#8 DER of the device private key and
// returns its SHA-256 hash as lowercase hex. Deterministic: deleting the
// key file and regenerating mints a new identity.
func (s *Store) DeviceIdentity() (string, error) {
	if err := s.EnsureDeviceKey(); err != nil {
		return "", err
	}

	der, err := s.readPrivateKeyDER(ollanaconst.DeviceKeyFile)
	if err != nil {
		return "", fmt.Errorf("read device key: %w", err)
	}

	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// OpenTransportFiles returns the transport cert and key file paths for use
// by the Server Proxy at TLS bind time.
func (s *Store) OpenTransportFiles() (certPath, keyPath string, err error) {
	if err := s.EnsureTransportCert(); err != nil {
		return "", "", err
	}
	return s.path(ollanaconst.TransportCertFile), s.path(ollanaconst.TransportKeyFile), nil
}

// TransportTLSConfig loads the transport cert+key into a *tls.Config ready
// for the Server Proxy to bind with. No client auth: authentication rides
// on the X-Ollana-Device-Id header, not the certificate.
func (s *Store) TransportTLSConfig() (*tls.Config, error) {
	certPath, keyPath, err := s.OpenTransportFiles()
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load transport cert: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// ensureX509 generates a self-signed ECDSA cert with a wildcard subject if
// either file is missing, then writes both with owner-read-only permissions.
func (s *Store) ensureX509(certFile, keyFile string) error {
	certPath := s.path(certFile)
	keyPath := s.path(keyFile)

	if fileExists(certPath) && fileExists(keyPath) {
		return nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate device key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "*"},
		DNSNames:              []string{"*"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create self-signed cert: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal pkcs8 key: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", certDER); err != nil {
		return fmt.Errorf("write cert %s: %w", certPath, err)
	}
	if err := writePEM(keyPath, "PRIVATE KEY", keyDER); err != nil {
		return fmt.Errorf("write key %s: %w", keyPath, err)
	}

	s.logger.Info().Str("cert", certPath).Str("key", keyPath).Msg("generated self-signed cert pair")

	return nil
}

// readPrivateKeyDER reads a PEM-encoded PKCS#8 private key file and returns
// its raw DER bytes (the block content, not the PEM envelope).
func (s *Store) readPrivateKeyDER(keyFile string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(keyFile))
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", keyFile)
	}

	return block.Bytes, nil
}

func writePEM(path, blockType string, der []byte) error {
	// A surviving half of the pair is owner-read-only; remove it so it can
	// be rewritten.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, keyFileMode)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return err
	}

	// OpenFile's mode is modulated by umask; force the intended mode.
	return os.Chmod(path, keyFileMode)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
