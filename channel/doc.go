// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel provides the participant side of the transport
// channel.
//
// [Transport] is the narrow publish/subscribe-by-topic surface the
// rest of the client is written against: join a room, fire-and-forget
// publishes (room-wide or addressed), and local multiplexing of
// inbound envelopes by topic. Delivery is at-most-once with no
// cross-topic or cross-participant ordering; the operation log's
// timestamp fold and the presence protocol absorb loss and reordering.
//
// [Client] is the production implementation over a websocket to the
// relay, reconnecting transparently with exponential backoff and
// re-joining its room after a drop. [Hub] and [Memory] form the
// in-process implementation with identical admission and routing
// semantics for tests.
package channel
