// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package irq models the interrupt-masking primitive that the scheduler core
// treats as an external collaborator: a scoped disable/restore of interrupts
// around critical sections, plus the current nesting context (in-interrupt
// vs. in-thread). The core never locks its own state; it disables interrupts
// around it instead, so this package is the one synchronization primitive
// the scheduler core (sched, ksync, boot) is built on top of.
package irq

import "sync/atomic"

// Primitive is the interrupt-masking contract: disable/restore a nesting
// level, report whether the caller is currently inside an interrupt
// handler, and mark a running handler to yield when it returns to thread
// context.
type Primitive interface {
	// Disable raises the interrupt nesting level by one and returns the
	// previous level.
	Disable() (prevLevel uint32)
	// Restore sets the interrupt nesting level back to prevLevel.
	Restore(prevLevel uint32)
	// InInterrupt reports whether the primitive is currently inside an
	// interrupt handler.
	InInterrupt() bool
	// YieldOnReturn marks the current interrupt handler to request a
	// scheduler entry when it returns to thread context.
	YieldOnReturn()
}

// Counter is the in-process stand-in for the hardware flag: a per-thread
// nesting level plus a process-wide "are we inside the tick ISR" flag. Each
// kthread.Thread embeds one, consistent with the single-goroutine-runs rule
// that platform.Switcher enforces: "current thread" is always well-defined,
// so a per-thread level substitutes faithfully for a per-CPU flag.
type Counter struct {
	level       uint32
	inInterrupt uint32
	yieldOnISR  uint32
}

// Disable implements Primitive.
func (c *Counter) Disable() uint32 {
	return atomic.AddUint32(&c.level, 1) - 1
}

// Restore implements Primitive.
func (c *Counter) Restore(prevLevel uint32) {
	atomic.StoreUint32(&c.level, prevLevel)
}

// Level returns the current nesting level. Zero means interrupts are
// enabled for this counter's owner.
func (c *Counter) Level() uint32 {
	return atomic.LoadUint32(&c.level)
}

// InInterrupt implements Primitive.
func (c *Counter) InInterrupt() bool {
	return atomic.LoadUint32(&c.inInterrupt) != 0
}

// EnterInterrupt marks the counter as executing inside the tick ISR. Called
// only by sched.Scheduler.Wake and sched.Scheduler.Tick, around the body of
// each timer-path call.
func (c *Counter) EnterInterrupt() {
	atomic.StoreUint32(&c.inInterrupt, 1)
}

// LeaveInterrupt clears the in-interrupt flag and reports whether
// YieldOnReturn was requested during the handler, clearing that flag too.
func (c *Counter) LeaveInterrupt() (yieldRequested bool) {
	atomic.StoreUint32(&c.inInterrupt, 0)
	return atomic.SwapUint32(&c.yieldOnISR, 0) != 0
}

// YieldOnReturn implements Primitive.
func (c *Counter) YieldOnReturn() {
	atomic.StoreUint32(&c.yieldOnISR, 1)
}

// Guard is a scoped interrupt-disable: Acquire returns a token that must be
// passed to the matching Release, so that nested disable/restore pairs
// round-trip correctly and a release leaves the interrupt level exactly
// where the matching acquire found it.
type Guard struct {
	prim  Primitive
	prev  uint32
	armed bool
}

// Acquire disables interrupts via prim and returns a Guard that must be
// released exactly once.
func Acquire(prim Primitive) Guard {
	return Guard{prim: prim, prev: prim.Disable(), armed: true}
}

// Release restores the interrupt level captured at Acquire time. Release is
// idempotent: calling it more than once is a no-op after the first call.
func (g *Guard) Release() {
	if !g.armed {
		return
	}
	g.prim.Restore(g.prev)
	g.armed = false
}
