// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time so that schedules can be driven deterministically
// in tests. Production code injects Real(); tests inject Fake() and call
// Advance to fire timers.
//
// Components that re-announce presence, evict stale roster entries, or
// expire ended-room records take a Clock instead of calling the time
// package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f. The returned Timer
	// cancels the pending call with Stop; its C field is nil, matching
	// time.AfterFunc.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. Stop releases its resources;
// it does not close C.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1; ticks the consumer
	// misses are dropped, matching time.Ticker.
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No ticks are delivered after Stop returns.
func (t *Ticker) Stop() { t.stop() }

// Timer is a scheduled one-shot event. Timers returned by AfterFunc
// carry a nil C.
type Timer struct {
	C <-chan time.Time

	stop func() bool
}

// Stop prevents the timer from firing. It reports whether the call
// stopped the timer before it fired.
func (t *Timer) Stop() bool { return t.stop() }
