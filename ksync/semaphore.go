// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ksync provides the kernel's priority-aware synchronization
// primitives: a counting semaphore, a mutual-exclusion lock, and a condition
// variable. All three keep their wait queues in priority order and release
// the highest-priority waiter first; every release that wakes a thread
// outranking the current one causes an immediate preemption (or an
// end-of-interrupt yield when the release happens in interrupt context).
//
// The primitives protect their own state the same way the scheduler does:
// by masking interrupts, never by a lock of their own.
package ksync

import (
	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/klog"
	"coresched.dev/kernel/sched"
)

// A Semaphore is a counting semaphore: a nonnegative count with Down ("P")
// blocking while the count is zero, and Up ("V") incrementing it and waking
// the highest-priority waiter.
type Semaphore struct {
	sched   *sched.Scheduler
	count   uint32
	waiters waitQueue
}

// NewSemaphore returns a semaphore with the given initial count.
func NewSemaphore(s *sched.Scheduler, count uint32) *Semaphore {
	return &Semaphore{sched: s, count: count}
}

// Down decrements the count, blocking until it is positive. Must not be
// called from interrupt context.
func (m *Semaphore) Down() {
	g := irq.Acquire(m.sched)
	if m.sched.InInterrupt() {
		klog.Fatalf("ksync: Semaphore.Down from interrupt context")
	}
	m.down()
	g.Release()
}

// down is Down's body; interrupts disabled.
func (m *Semaphore) down() {
	for m.count == 0 {
		m.waiters.add(m.sched.Running())
		m.sched.Block()
		// Woken; the count may already have been taken by a
		// higher-priority thread that ran first, so re-check.
	}
	m.count--
}

// TryDown decrements the count if it is positive, without blocking, and
// reports whether it did.
func (m *Semaphore) TryDown() bool {
	g := irq.Acquire(m.sched)
	ok := m.count > 0
	if ok {
		m.count--
	}
	g.Release()
	return ok
}

// Up increments the count and, if threads are waiting, wakes the one with
// the highest current priority. If the woken thread outranks the caller, the
// caller yields before Up returns (or, in interrupt context, when the
// handler returns to thread context).
func (m *Semaphore) Up() {
	g := irq.Acquire(m.sched)
	m.up()
	g.Release()
}

// up is Up's body; interrupts disabled.
func (m *Semaphore) up() {
	if m.waiters.Len() > 0 {
		t := m.waiters.popHighest()
		m.sched.Unblock(t)
		if t.Priority() > m.sched.Running().Priority() {
			m.sched.RequestPreempt()
		}
	}
	m.count++
}

// Count returns the current count. Useful mainly for tests and diagnostics;
// the value may be stale by the time the caller looks at it.
func (m *Semaphore) Count() uint32 {
	g := irq.Acquire(m.sched)
	n := m.count
	g.Release()
	return n
}
