// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// [Clock] covers the time operations the core schedules on: Now, After,
// AfterFunc, and NewTicker. [Real] wraps the standard time package for
// production use. [Fake] freezes time for tests; [FakeClock.Advance]
// fires pending timers and tickers in deadline order, and
// [FakeClock.WaitForWaiters] synchronizes a test with a goroutine that
// registers its timers asynchronously.
package clock
