// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform supplies concrete, swappable implementations of the
// collaborators the scheduler core treats as external: the context-switch
// primitive, the page-granular stack allocator, and the timer-interrupt
// tick source. Nothing in sched, ksync, kthread, readyq, or sleepq imports
// this package directly; they depend only on the narrow interfaces it
// satisfies (see sched.Switcher, kthread.PageHandle).
package platform

import "coresched.dev/kernel/kthread"

// Switcher is the goroutine-rendezvous substitute for a register-level
// context switch. Every Thread is backed by a goroutine parked on its own
// rendezvous gate; Switch signals the next thread's gate and parks on the
// previous thread's, so exactly one goroutine is ever unparked. That keeps
// the single-logical-CPU invariant even though nothing here touches real
// registers or a real stack pointer.
type Switcher struct{}

// NewSwitcher returns a ready-to-use Switcher. It carries no state; the
// rendezvous gates live on each Thread.
func NewSwitcher() *Switcher {
	return &Switcher{}
}

// StartGoroutine launches the goroutine that will back t. The goroutine
// parks immediately and does not run trampoline until the scheduler first
// switches into t; trampoline is the caller-supplied run function, invoked
// only after the first Switch hands control to t.
func (s *Switcher) StartGoroutine(t *kthread.Thread, trampoline func()) {
	go func() {
		t.Park()
		trampoline()
	}()
}

// Switch hands the logical CPU from prev to next: it signals next's gate,
// then parks on prev's. It returns once some later Switch call signals prev
// again, resuming whichever call frame last switched away from prev.
// Switching a thread to itself is a legal no-op resumption path (e.g. the
// idle thread rescheduling itself when it remains the only runnable
// thread).
func (s *Switcher) Switch(prev, next *kthread.Thread) {
	if prev == next {
		return
	}
	next.Resume()
	prev.Park()
}

// Handoff transfers the logical CPU to next without parking the caller. It
// is the terminal half of a switch, used when the previous thread is exiting
// and will never be resumed: its goroutine unwinds instead of parking.
func (s *Switcher) Handoff(next *kthread.Thread) {
	next.Resume()
}
