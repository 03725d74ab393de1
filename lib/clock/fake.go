// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Nothing fires
// until Advance is called. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. Timers and tickers
// register as pending waiters and fire, in deadline order, when
// Advance moves the clock past their deadline.
//
// AfterFunc callbacks run synchronously inside Advance. Calling
// Advance from inside a callback deadlocks.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	waiters    []*waiter
	registered *sync.Cond
}

// waiter is one pending After, AfterFunc, or Ticker registration.
type waiter struct {
	deadline time.Time
	channel  chan time.Time // nil for AfterFunc waiters
	callback func()         // nil for channel waiters
	interval time.Duration  // non-zero for tickers; rescheduled on fire
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock advances past
// the deadline. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.add(&waiter{deadline: c.current.Add(d), channel: ch})
	return ch
}

// AfterFunc schedules f to run when the clock advances past the
// deadline. If d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	w := &waiter{callback: f}
	c.mu.Lock()
	w.deadline = c.current.Add(d)
	c.add(w)
	c.mu.Unlock()
	return &Timer{stop: func() bool { return c.cancel(w) }}
}

// NewTicker returns a Ticker that fires once per interval during
// Advance. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	w := &waiter{channel: make(chan time.Time, 1), interval: d}
	c.mu.Lock()
	w.deadline = c.current.Add(d)
	c.add(w)
	c.mu.Unlock()
	return &Ticker{C: w.channel, stop: func() { c.cancel(w) }}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Ticker
// waiters fire once per elapsed interval; ticks that overflow the
// buffer are dropped, matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, w := range due {
			if w.callback != nil {
				w.callback()
				continue
			}
			select {
			case w.channel <- target:
			default:
			}
		}
	}
}

// WaitForWaiters blocks until at least n waiters are pending. Closes
// the race between a goroutine registering its ticker and the test
// advancing the clock.
func (c *FakeClock) WaitForWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending() < n {
		c.registered.Wait()
	}
}

func (c *FakeClock) add(w *waiter) {
	c.waiters = append(c.waiters, w)
	c.registered.Broadcast()
}

func (c *FakeClock) cancel(w *waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := !w.stopped
	w.stopped = true
	return was
}

func (c *FakeClock) pending() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

// takeDue removes and returns the waiters due at target, rescheduling
// tickers for their next interval.
func (c *FakeClock) takeDue(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*waiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			keep = append(keep, w)
			continue
		}
		due = append(due, w)
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			keep = append(keep, w)
		}
	}
	c.waiters = keep
	return due
}
