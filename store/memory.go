// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"sync"
)

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is an in-process Store for tests. Values go through the same
// blob encoding as Bolt so type fidelity matches the durable path.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (s *Memory) Save(key string, value any) error {
	blob, err := encodeBlob(value)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob
	return nil
}

func (s *Memory) Load(key string, out any) (bool, error) {
	s.mu.Lock()
	blob, ok := s.blobs[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := decodeBlob(blob, out); err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	return true, nil
}

func (s *Memory) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *Memory) Close() error { return nil }
