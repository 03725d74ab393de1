// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package store

// Store is a scoped key→blob store with last-write-wins semantics and
// no guarantees beyond atomicity of a single Save. Callers namespace
// keys by session identifier (ops_<meeting>, chat_<meeting>, ...) so
// state from different sessions never mixes.
type Store interface {
	// Save encodes value and writes it under key, replacing any
	// previous value.
	Save(key string, value any) error

	// Load decodes the value under key into out. Reports false when
	// the key is absent, with out untouched.
	Load(key string, out any) (bool, error)

	// Clear removes key. Clearing an absent key is a no-op.
	Clear(key string) error

	// Close releases the store's resources.
	Close() error
}
