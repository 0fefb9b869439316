// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package allowlist persists the set of peer device identities this host
// is willing to talk to: a simple keyed TOML
// document with a single `allowed` array field, rewritten atomically on
// every mutation.
package allowlist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// document is the on-disk shape: `allowed = [<hex>, ...]`.
type document struct {
	Allowed []string `toml:"allowed"`
}

// Store is the in-memory snapshot backing a single host's allow-list.
// The in-memory copy is captured at construction; mutations from a
// separate `device allow`/`device disable` invocation require a daemon
// restart to take effect. That's a deliberate design choice, not an
// oversight.
type Store struct {
	path string

	mu      sync.Mutex
	allowed map[string]struct{}

	logger zerolog.Logger
}

// Open loads the allow-list at dir/fileName. A missing file yields an
// empty list; the file is first written on the first mutation.
func Open(dir, fileName string) (*Store, error) {
	path := filepath.Join(dir, fileName)

	doc, err := loadDocument(path)
	if err != nil {
		return nil, fmt.Errorf("load allow-list %s: %w", path, err)
	}

	s := &Store{
		path:    path,
		allowed: make(map[string]struct{}, len(doc.Allowed)),
		logger:  log.With().Str("component", "allowlist").Logger(),
	}
	for _, id := range doc.Allowed {
		s.allowed[id] = struct{}{}
	}

	return s, nil
}

// List returns every allowed identity, in no particular order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.allowed))
	for id := range s.allowed {
		out = append(out, id)
	}
	return out
}

// Allow adds id to the allow-list. Returns true iff id was newly added.
func (s *Store) Allow(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, present := s.allowed[id]; present {
		return false, nil
	}

	s.allowed[id] = struct{}{}
	if err := s.persistLocked(); err != nil {
		delete(s.allowed, id)
		return false, err
	}

	s.logger.Info().Str("device_id", id).Msg("allowed device")
	return true, nil
}

// Disable removes id from the allow-list. Returns true iff id was present.
func (s *Store) Disable(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, present := s.allowed[id]; !present {
		return false, nil
	}

	delete(s.allowed, id)
	if err := s.persistLocked(); err != nil {
		s.allowed[id] = struct{}{}
		return false, err
	}

	s.logger.Info().Str("device_id", id).Msg("disabled device")
	return true, nil
}

// IsAllowed is the sole authorization predicate: set membership.
func (s *Store) IsAllowed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.allowed[id]
	return ok
}

// persistLocked rewrites the backing file by writing a temp file in the
// same directory and renaming it into place. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	doc := document{Allowed: make([]string, 0, len(s.allowed))}
	for id := range s.allowed {
		doc.Allowed = append(doc.Allowed, id)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".device_allowed-*.toml")
	if err != nil {
		return fmt.Errorf("create temp allow-list file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode allow-list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp allow-list file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename allow-list into place: %w", err)
	}

	return nil
}

func loadDocument(path string) (document, error) {
	var doc document

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}

	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return doc, fmt.Errorf("parse toml: %w", err)
	}

	return doc, nil
}
