// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package board implements the replicated drawing surface.
//
// The shared document is never stored directly. Each participant keeps
// a [Log] of immutable [Operation] values and derives the visible
// [Document] with [Log.Project]: a stable sort by timestamp followed
// by a fold (add/update upsert, delete removes, reset clears). Because
// Append is idempotent by operation id and the fold is
// arrival-order-insensitive, replicas that have received the same set
// of operations converge regardless of delivery order — last writer
// wins by timestamp, nothing fancier.
//
// [History] layers per-user undo/redo on the log. Undo is a
// retraction: the operation is removed from the log by id (and, via
// broadcast, from every replica's log), not masked by a DELETE.
//
// Logs persist through the store package, scoped per session key.
package board
