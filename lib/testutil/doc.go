// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-deadline pattern for channel assertions so tests stay
// free of raw time.After plumbing. All helpers fail the test via
// Fatalf rather than returning errors.
package testutil
