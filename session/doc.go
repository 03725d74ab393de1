// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package session glues one participant together: the room channel,
// the replicated operation log with per-user undo, the WebRTC peer
// links, the presence roster, the moderation protocol, and the scoped
// durable store.
//
// A [Session] runs a single event loop. Every inbound envelope and
// every mutating method executes there, so the session's own state has
// no locks; concurrency lives inside the owned components. Outbound
// notifications go through the [Events] callbacks.
//
// The AI collaborator sits behind [Summarizer] and is strictly
// optional: summaries and beautify suggestions travel the same wire
// topics and operation log as everything else, and a backend failure
// leaves the session untouched.
package session
