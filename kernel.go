// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel is the public face of the thread core: it boots a
// scheduler against the default platform collaborators and exposes the
// thread API that collaborators and tests program against.
package kernel

import (
	"time"

	"coresched.dev/kernel/boot"
	"coresched.dev/kernel/config"
	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/kevents"
	"coresched.dev/kernel/kthread"
	"coresched.dev/kernel/platform"
	"coresched.dev/kernel/sched"
)

// Kernel owns one booted scheduler instance plus its tick source and event
// stream. The goroutine that calls Boot becomes the initial thread, "main".
type Kernel struct {
	sched  *sched.Scheduler
	ticks  *platform.TickSource
	events *kevents.Publisher
	tun    config.Tunables
}

// Boot constructs and starts a kernel with the given tunables: the caller
// is adopted as thread "main", the idle thread is spawned, and the system is
// multitasking when Boot returns. The tick source is constructed but not
// running; call StartTicker, or drive Ticks().Step() directly for
// deterministic tests.
func Boot(tun config.Tunables) *Kernel {
	events := kevents.NewPublisher()
	s := boot.Init(tun, platform.NewSwitcher(), platform.NewPageAllocator(), events)
	boot.Start(s)
	return &Kernel{
		sched:  s,
		ticks:  platform.NewTickSource(s),
		events: events,
		tun:    tun,
	}
}

// Sched returns the underlying scheduler, for callers that need the full
// surface (synchronization primitives take it as their constructor
// argument).
func (k *Kernel) Sched() *sched.Scheduler { return k.sched }

// Ticks returns the tick source driving this kernel.
func (k *Kernel) Ticks() *platform.TickSource { return k.ticks }

// Events returns the thread lifecycle event stream.
func (k *Kernel) Events() *kevents.Publisher { return k.events }

// StartTicker begins delivering timer ticks at the given period from a
// background goroutine. Stop with StopTicker.
func (k *Kernel) StartTicker(period time.Duration) {
	go k.ticks.Run(period)
}

// StopTicker halts tick delivery. Call at most once.
func (k *Kernel) StopTicker() {
	k.ticks.Stop()
}

// Spawn creates a READY thread running fn(aux) at the given priority,
// preempting the caller if the new thread outranks it. It returns the new
// thread's tid, or 0 and an error when no stack page is available.
func (k *Kernel) Spawn(name string, priority int32, fn func(aux interface{}), aux interface{}) (uint64, error) {
	return k.sched.Spawn(name, priority, fn, aux)
}

// Current returns the calling thread's record.
func (k *Kernel) Current() *kthread.Thread { return k.sched.Current() }

// Tid returns the calling thread's identifier.
func (k *Kernel) Tid() uint64 { return k.sched.Current().ID }

// Name returns the calling thread's name.
func (k *Kernel) Name() string { return k.sched.Current().Name }

// Block marks the caller BLOCKED and schedules away; interrupts must be
// disabled (see Disabled).
func (k *Kernel) Block() { k.sched.Block() }

// Unblock makes a BLOCKED thread READY without preempting.
func (k *Kernel) Unblock(t *kthread.Thread) { k.sched.Unblock(t) }

// Yield surrenders the CPU to the next READY thread of equal or higher
// priority, re-queueing the caller at the tail of its bucket.
func (k *Kernel) Yield() { k.sched.Yield() }

// Exit terminates the calling thread; it does not return.
func (k *Kernel) Exit() { k.sched.Exit() }

// SleepUntil blocks the caller until the tick counter reaches deadline.
func (k *Kernel) SleepUntil(deadline uint64) { k.sched.SleepUntil(deadline) }

// Sleep blocks the caller for the given number of ticks from now.
func (k *Kernel) Sleep(ticks uint64) { k.sched.SleepUntil(k.sched.Now() + ticks) }

// Now returns the current tick count.
func (k *Kernel) Now() uint64 { return k.sched.Now() }

// SetPriority changes the caller's priority, yielding if the change leaves
// a higher-priority thread READY. A policy no-op in MLFQS mode.
func (k *Kernel) SetPriority(priority int32) { k.sched.SetPriority(priority) }

// GetPriority returns the caller's priority.
func (k *Kernel) GetPriority() int32 { return k.sched.GetPriority() }

// Preempt is a cooperative preemption point for compute-bound loops.
func (k *Kernel) Preempt() { k.sched.Preempt() }

// Foreach applies fn to every live thread; interrupts must be disabled.
func (k *Kernel) Foreach(fn func(*kthread.Thread)) { k.sched.Foreach(fn) }

// Disabled runs fn with interrupts disabled, the scoped form of the
// interrupt-masking primitive.
func (k *Kernel) Disabled(fn func()) {
	g := irq.Acquire(k.sched)
	fn()
	g.Release()
}

// MLFQSEnabled reports whether the simplified multi-level feedback policy
// is active.
func (k *Kernel) MLFQSEnabled() bool { return k.sched.MLFQSEnabled() }

// SetNice accepts and discards a nice value; the fair-share scheduler that
// would consume it is not part of this kernel.
func (k *Kernel) SetNice(nice int) {}

// GetNice returns the neutral nice value.
func (k *Kernel) GetNice() int { return 0 }

// GetLoadAvg returns the neutral load average.
func (k *Kernel) GetLoadAvg() int { return 0 }

// GetRecentCpu returns the neutral recent-cpu figure.
func (k *Kernel) GetRecentCpu() int { return 0 }

// Stats returns the tick accounting counters.
func (k *Kernel) Stats() sched.Stats { return k.sched.Stats() }
