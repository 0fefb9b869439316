// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestDeviceIdentityDeterministicAndStable(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	id1, err := store.DeviceIdentity()
	if err != nil {
		t.Fatalf("DeviceIdentity: %v", err)
	}

	if len(id1) != sha256.Size*2 {
		t.Fatalf("expected a %d-char hex identity, got %d chars", sha256.Size*2, len(id1))
	}

	id2, err := store.DeviceIdentity()
	if err != nil {
		t.Fatalf("DeviceIdentity (second call): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("identity is not stable across calls: %s != %s", id1, id2)
	}
}

func TestDeviceIdentityMatchesKeyHash(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	id, err := store.DeviceIdentity()
	if err != nil {
		t.Fatalf("DeviceIdentity: %v", err)
	}

	der, err := store.readPrivateKeyDER("device_key.pem")
	if err != nil {
		t.Fatalf("readPrivateKeyDER: %v", err)
	}

	sum := sha256.Sum256(der)
	want := hex.EncodeToString(sum[:])

	if id != want {
		t.Fatalf("identity %s does not match SHA256(DER) %s", id, want)
	}
}

func TestDeviceIdentityChangesWhenKeyDeleted(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	id1, err := store.DeviceIdentity()
	if err != nil {
		t.Fatalf("DeviceIdentity: %v", err)
	}

	// Deleting the key file and regenerating must mint a new identity.
	if err := os.Remove(filepath.Join(dir, "device_key.pem")); err != nil {
		t.Fatalf("remove device key: %v", err)
	}

	id2, err := store.DeviceIdentity()
	if err != nil {
		t.Fatalf("DeviceIdentity: %v", err)
	}

	if id1 == id2 {
		t.Fatalf("expected distinct identities for distinct keys, got the same: %s", id1)
	}
}

func TestEnsureTransportCertIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.EnsureTransportCert(); err != nil {
		t.Fatalf("EnsureTransportCert: %v", err)
	}

	certPath, keyPath, err := store.OpenTransportFiles()
	if err != nil {
		t.Fatalf("OpenTransportFiles: %v", err)
	}

	first, err := store.readPrivateKeyDER("http_server_key.pem")
	if err != nil {
		t.Fatalf("readPrivateKeyDER: %v", err)
	}

	if err := store.EnsureTransportCert(); err != nil {
		t.Fatalf("EnsureTransportCert (second call): %v", err)
	}

	second, err := store.readPrivateKeyDER("http_server_key.pem")
	if err != nil {
		t.Fatalf("readPrivateKeyDER: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("EnsureTransportCert regenerated an existing key pair")
	}

	if certPath == "" || keyPath == "" {
		t.Fatalf("expected non-empty transport file paths")
	}
}
