// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence maintains each participant's view of who is in the
// room.
//
// Discovery is symmetric: a joiner broadcasts a presence ping, and any
// member that does not yet know the sender answers with a targeted
// pong after a short random delay. Relay admission and disconnect
// notices feed the same table. Because a notice can be lost, every
// roster re-announces itself periodically and evicts entries that have
// gone silent past a liveness horizon.
package presence
