// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package store provides the client-local durable store.
//
// [Store] is a scoped key→blob contract with last-write-wins
// semantics: Save, Load, Clear, nothing transactional across keys.
// [Bolt] persists to a single-file bbolt database (one write
// transaction per Save); [Memory] backs tests. Both encode values as
// deterministic CBOR compressed with zstd, so a test exercising Memory
// covers the same serialization path as production.
package store
