// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "sync/atomic"

// Wake releases every sleeping thread whose deadline has arrived. The tick
// source calls it before Tick on every tick; it runs in interrupt context
// with interrupts masked for its duration. A woken thread that outranks the
// interrupted one requests an end-of-interrupt yield.
func (s *Scheduler) Wake(now uint64) {
	s.mu.Lock()
	s.isr.EnterInterrupt()
	atomic.StoreUint64(&s.now, now)
	for _, t := range s.sleepers.Wake(now) {
		s.unblockLocked(t)
		if t.Priority() > s.current.Priority() {
			s.isr.YieldOnReturn()
		}
	}
	if s.isr.LeaveInterrupt() {
		s.pendingYield = true
	}
	s.mu.Unlock()
}

// Tick is the timer interrupt handler body, called once per tick after Wake:
// it accounts the tick, ages READY threads every AgingTicks ticks, and
// requests preemption when the running thread's time slice is exhausted or
// aging has promoted a READY thread above it.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	s.isr.EnterInterrupt()

	atomic.AddUint64(&s.stats.TotalTicks, 1)
	if s.current == s.idle {
		atomic.AddUint64(&s.stats.IdleTicks, 1)
	} else {
		atomic.AddUint64(&s.stats.KernelTicks, 1)
	}

	s.agingCount++
	if s.agingCount >= s.tun.AgingTicks {
		s.agingCount = 0
		s.ready.PromoteAll(s.tun.PriMax)
	}
	// A promotion may have lifted a READY thread above the running one.
	if !s.ready.Empty() && s.ready.HighestReady() > s.current.Priority() {
		s.isr.YieldOnReturn()
	}

	s.sliceCount++
	if s.sliceCount >= s.tun.TimeSlice {
		s.isr.YieldOnReturn()
	}

	if s.isr.LeaveInterrupt() {
		s.pendingYield = true
	}
	// Pulse the idle thread's halt gate; dropped if nobody is halted.
	select {
	case s.tickPulse <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// Stats returns a snapshot of the tick accounting counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		TotalTicks:  atomic.LoadUint64(&s.stats.TotalTicks),
		IdleTicks:   atomic.LoadUint64(&s.stats.IdleTicks),
		KernelTicks: atomic.LoadUint64(&s.stats.KernelTicks),
		UserTicks:   atomic.LoadUint64(&s.stats.UserTicks),
	}
}
