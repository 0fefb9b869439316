// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package allowlist

import (
	"os"
	"path/filepath"
	"testing"
)

const testFile = "device_allowed.toml"

func TestAllowIdempotence(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testFile)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	added, err := store.Allow("abc123")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !added {
		t.Fatalf("expected first Allow to report newly added")
	}

	addedAgain, err := store.Allow("abc123")
	if err != nil {
		t.Fatalf("Allow (second): %v", err)
	}
	if addedAgain {
		t.Fatalf("expected second Allow to report already present")
	}

	ids := store.List()
	if len(ids) != 1 || ids[0] != "abc123" {
		t.Fatalf("expected exactly one allowed id, got %v", ids)
	}
}

func TestDisableSymmetric(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testFile)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := store.Allow("def456"); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	removed, err := store.Disable("def456")
	if err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if !removed {
		t.Fatalf("expected first Disable to report removed")
	}

	removedAgain, err := store.Disable("def456")
	if err != nil {
		t.Fatalf("Disable (second): %v", err)
	}
	if removedAgain {
		t.Fatalf("expected second Disable to report not present")
	}

	if store.IsAllowed("def456") {
		t.Fatalf("expected def456 to no longer be allowed")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testFile)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := store.Allow("persisted-id"); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	reopened, err := Open(dir, testFile)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}

	if !reopened.IsAllowed("persisted-id") {
		t.Fatalf("expected persisted-id to survive reopen")
	}

	raw, err := os.ReadFile(filepath.Join(dir, testFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty allow-list file on disk")
	}
}

func TestOpenOnMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, testFile)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if ids := store.List(); len(ids) != 0 {
		t.Fatalf("expected empty allow-list, got %v", ids)
	}
}
