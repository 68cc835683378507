// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"sync/atomic"
	"time"
)

// Clock is the narrow surface a TickSource drives: wake due sleepers, then
// account and possibly preempt. sched.Scheduler implements it; TickSource
// depends only on this interface, never on package sched directly.
type Clock interface {
	Wake(now uint64)
	Tick()
}

// TickSource drives a Clock at a stable frequency, calling Wake(now) then
// Tick() on every tick. Two modes are supported: Run, a time.Ticker-driven
// loop for the cmd/kernelsim CLI demo; and Step, a direct synchronous call
// for deterministic test harnesses that need to advance the clock exactly
// N ticks without wall-clock delay.
type TickSource struct {
	clock Clock
	now   uint64
	stop  chan struct{}
}

// NewTickSource returns a TickSource driving clock, starting at tick 0.
func NewTickSource(clock Clock) *TickSource {
	return &TickSource{clock: clock, stop: make(chan struct{})}
}

// Now returns the current tick count.
func (ts *TickSource) Now() uint64 {
	return atomic.LoadUint64(&ts.now)
}

// Step advances the clock by exactly one tick, synchronously, calling
// Wake(now) then Tick(). Intended for deterministic tests.
func (ts *TickSource) Step() uint64 {
	now := atomic.AddUint64(&ts.now, 1)
	ts.clock.Wake(now)
	ts.clock.Tick()
	return now
}

// Run drives the clock from a real time.Ticker until Stop is called, the
// way cmd/kernelsim runs a live scenario. The concrete rate is policy;
// callers supply it.
func (ts *TickSource) Run(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ts.Step()
		case <-ts.stop:
			return
		}
	}
}

// Stop terminates a running Run loop. Safe to call at most once.
func (ts *TickSource) Stop() {
	close(ts.stop)
}
