// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding.
//
// Wire envelopes and persisted store blobs both go through [Marshal]
// and [Unmarshal]. The encoder uses Core Deterministic Encoding so the
// same value yields identical bytes everywhere; the decoder ignores
// unknown fields for forward compatibility. [RawMessage] defers
// payload decoding until a frame's topic has been inspected.
package codec
