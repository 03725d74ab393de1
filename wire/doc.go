// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the message vocabulary of the meeting protocol.
//
// Every topic from the session protocol has exactly one payload
// variant type, decoded and validated at the channel boundary via
// [Payload] rather than trusted deep inside handlers. [Envelope]
// frames each message with topic, sender, and optional unicast target;
// the relay routes on the envelope alone and never inspects payloads.
// Encoding is deterministic CBOR through lib/codec.
package wire
