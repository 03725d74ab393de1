// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package peerlink manages the WebRTC media links between a
// participant and its peers.
//
// A [Manager] keeps at most one link per remote id and drives the
// offer/answer exchange over the room channel's targeted topics. Each
// link allocates its audio and video sender slots up front, so turning
// media on and off is always an in-place track replacement and never a
// renegotiation; the link's generation number is therefore stable
// across camera toggles and screen-share swaps. Crossing offers are
// resolved deterministically by participant id, the greater side
// rolling back.
//
// Device acquisition sits behind [MediaSource] so sessions and tests
// run without real capture hardware.
package peerlink
