// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements the kernel's thread scheduler: a preemptive,
// prioritized, single-CPU scheduler with bucketed FIFO ready queues, a
// tick-driven time slice, and an aging policy that promotes READY threads so
// that no runnable thread starves.
//
// Implementation notes
//
// All scheduler state is protected by masking interrupts, not by a lock of
// its own: the kernel is uniprocessor and the timer interrupt is the sole
// source of asynchrony. In this rendition "masking interrupts" is a single
// mutex: holding it is the disabled state. A thread disables interrupts by
// acquiring the mutex through the Scheduler's irq.Primitive implementation
// (Disable/Restore), which tracks per-thread nesting so that nested critical
// sections do not re-lock; the timer path (Wake/Tick) takes the mutex
// directly and brackets itself with the in-interrupt flag.
//
// The context switch hands the disabled state across stacks: the switching
// thread parks while holding the mutex, and the thread being switched to
// releases it on its own terms when it unwinds its own critical section (or,
// for a brand-new thread, in its trampoline before its entry function runs).
// This is the one place ownership of the mutex legitimately migrates between
// goroutines.
//
// Preemption is delivered at the moment a thread's outermost critical
// section ends: Restore, on the transition back to level zero, consumes any
// pending yield request before re-enabling. The timer interrupt cannot seize
// the CPU from a compute-bound thread on its own, so such threads pass
// through a preemption point (any scheduler entry, or Preempt) the way a
// real CPU passes through its return-from-interrupt path.
package sched

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"coresched.dev/kernel/config"
	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/kevents"
	"coresched.dev/kernel/klog"
	"coresched.dev/kernel/kthread"
	"coresched.dev/kernel/readyq"
	"coresched.dev/kernel/sleepq"
)

// ErrNoPage is returned by Spawn when the page allocator cannot supply a
// stack page. It is the one recoverable failure in this package; every other
// misuse is a fatal assertion.
var ErrNoPage = errors.New("sched: out of stack pages")

// Switcher is the context-switch contract: save the previous thread, resume
// the next, return when the previous thread is switched back to. New threads
// begin execution via the trampoline passed to StartGoroutine.
type Switcher interface {
	StartGoroutine(t *kthread.Thread, trampoline func())
	Switch(prev, next *kthread.Thread)
	Handoff(next *kthread.Thread)
}

// PageAllocator is the stack-page allocation contract. AllocPage returns nil
// when no page is available.
type PageAllocator interface {
	AllocPage(zeroed bool) kthread.PageHandle
}

// Stats are the tick accounting counters, incremented once per timer tick.
type Stats struct {
	TotalTicks  uint64
	IdleTicks   uint64
	KernelTicks uint64
	UserTicks   uint64
}

// Scheduler is the single-CPU thread scheduler.
type Scheduler struct {
	// mu is the interrupt flag: held means interrupts are disabled.
	// It is acquired through Disable/Restore by threads and directly by
	// the timer path, and is handed off across context switches.
	mu  sync.Mutex
	isr irq.Counter // timer-handler nesting, in-interrupt flag, yield request

	tun      config.Tunables
	ready    *readyq.Queues
	sleepers *sleepq.List
	reg      *kthread.Registry
	switcher Switcher
	pages    PageAllocator
	events   *kevents.Publisher

	// current is written only while mu is held, by the thread performing
	// a switch; it is read without mu only by the thread it names, whose
	// resumption is ordered after the write by the switch rendezvous.
	current *kthread.Thread
	initial *kthread.Thread
	idle    *kthread.Thread
	reap    *kthread.Thread

	pendingYield bool   // under mu; consumed when the outermost guard releases
	sliceCount   uint32 // under mu; ticks since the last context switch
	agingCount   uint32 // under mu; ticks since the last aging promotion

	now   uint64 // atomic; last tick delivered by the tick source
	mlfqs int32  // atomic bool; aging is the sole priority mutator when set

	stats     Stats         // counters atomic, so Stats() needs no guard
	tickPulse chan struct{} // pulsed once per tick; the idle thread's halt gate
}

// New returns a Scheduler with empty queues and no threads. Callers must
// AdoptMain before any other operation, and install an idle thread (see
// SetIdle) before the ready queues can run dry.
func New(tun config.Tunables, sw Switcher, pages PageAllocator, events *kevents.Publisher) *Scheduler {
	if events == nil {
		events = kevents.NewPublisher()
	}
	s := &Scheduler{
		tun:       tun,
		ready:     readyq.New(tun.PriMin, tun.PriMax),
		sleepers:  sleepq.New(),
		reg:       kthread.NewRegistry(),
		switcher:  sw,
		pages:     pages,
		events:    events,
		tickPulse: make(chan struct{}, 1),
	}
	if tun.MLFQS {
		s.mlfqs = 1
	}
	return s
}

// AdoptMain reinterprets the calling execution context as the initial
// thread: it is registered under the given name at the default priority in
// status RUNNING, without a spawn. It is the only thread never reaped.
func (s *Scheduler) AdoptMain(name string) *kthread.Thread {
	if s.current != nil {
		klog.Fatalf("sched: AdoptMain called twice")
	}
	t := kthread.New(s.reg.AllocID(), name, s.tun.PriDefault, nil, nil, s.pages.AllocPage(true))
	s.reg.Register(t)
	t.SetStatus(kthread.StatusRunning)
	s.current = t
	s.initial = t
	return t
}

// SetIdle installs t as the idle thread: the thread PickNext falls back to
// when every ready bucket is empty. Called once, by the idle thread itself
// on its first run. Interrupts must be disabled.
func (s *Scheduler) SetIdle(t *kthread.Thread) {
	if s.idle != nil {
		klog.Fatalf("sched: idle thread installed twice")
	}
	s.idle = t
}

// Registry returns the global thread registry.
func (s *Scheduler) Registry() *kthread.Registry {
	return s.reg
}

// Tunables returns the constants this scheduler was built with.
func (s *Scheduler) Tunables() config.Tunables {
	return s.tun
}

// --------------------------------
// irq.Primitive

// Disable raises the calling thread's interrupt nesting level, taking the
// interrupt flag on the transition from zero. It implements irq.Primitive;
// use irq.Acquire(s) for the scoped form.
func (s *Scheduler) Disable() uint32 {
	t := s.current
	prev := t.Irq.Disable()
	if prev == 0 {
		s.mu.Lock()
	}
	return prev
}

// Restore lowers the calling thread's interrupt nesting level back to
// prevLevel. On the transition back to zero it first delivers any pending
// preemption — the analogue of the return-from-interrupt path on a real CPU
// — and then releases the interrupt flag.
func (s *Scheduler) Restore(prevLevel uint32) {
	t := s.current
	if prevLevel == 0 {
		if s.pendingYield && t != s.idle && !s.isr.InInterrupt() {
			s.pendingYield = false
			s.ready.Enqueue(t)
			t.SetStatus(kthread.StatusReady)
			s.events.Publish(kevents.Event{
				Kind: kevents.Preempted, ThreadID: t.ID, ThreadName: t.Name,
				Priority: t.Priority(), Tick: s.Now(),
			})
			s.scheduleLocked()
		}
		t.Irq.Restore(0)
		s.mu.Unlock()
		return
	}
	t.Irq.Restore(prevLevel)
}

// InInterrupt reports whether the scheduler is currently inside the timer
// handler. Meaningful only while interrupts are disabled.
func (s *Scheduler) InInterrupt() bool {
	return s.isr.InInterrupt()
}

// YieldOnReturn marks the running timer handler to request a yield when it
// returns to thread context. Implements irq.Primitive.
func (s *Scheduler) YieldOnReturn() {
	s.isr.YieldOnReturn()
}

// RequestPreempt asks for a reschedule at the next opportunity: the end of
// the current timer handler when called in interrupt context, otherwise the
// end of the caller's outermost critical section. Interrupts must be
// disabled.
func (s *Scheduler) RequestPreempt() {
	if s.isr.InInterrupt() {
		s.isr.YieldOnReturn()
	} else {
		s.pendingYield = true
	}
}

// Preempt is a cooperative preemption point: it delivers any pending yield
// requested by the timer. Compute-bound loops call it the way real kernel
// code is preempted on its return-from-interrupt path; it is a no-op when no
// yield is pending.
func (s *Scheduler) Preempt() {
	g := irq.Acquire(s)
	g.Release()
}

// --------------------------------
// Thread API

// Running returns the thread currently holding the CPU. Interrupts must be
// disabled; in interrupt context it names the interrupted thread.
func (s *Scheduler) Running() *kthread.Thread {
	return s.current
}

// Current returns the calling thread's record, validating its integrity
// cookie on the way.
func (s *Scheduler) Current() *kthread.Thread {
	g := irq.Acquire(s)
	t := s.current
	s.checkIntegrity(t)
	g.Release()
	return t
}

// Spawn creates a new thread executing entry(aux) at the given priority.
// The thread is created blocked, registered, and immediately unblocked into
// READY; if it outranks the caller, the caller is preempted before Spawn
// returns. On stack-page exhaustion Spawn returns tid 0 and ErrNoPage.
func (s *Scheduler) Spawn(name string, priority int32, entry func(aux interface{}), aux interface{}) (uint64, error) {
	if priority < s.tun.PriMin || priority > s.tun.PriMax {
		klog.Fatalf("sched: Spawn %q with priority %d outside [%d, %d]", name, priority, s.tun.PriMin, s.tun.PriMax)
	}
	if entry == nil {
		klog.Fatalf("sched: Spawn %q with nil entry", name)
	}
	page := s.pages.AllocPage(true)
	if page == nil {
		return 0, ErrNoPage
	}
	g := irq.Acquire(s)
	t := kthread.New(s.reg.AllocID(), name, priority, entry, aux, page)
	s.reg.Register(t)
	s.switcher.StartGoroutine(t, func() { s.trampoline(t) })
	s.unblockLocked(t)
	s.events.Publish(kevents.Event{
		Kind: kevents.Spawned, ThreadID: t.ID, ThreadName: t.Name,
		Priority: priority, Tick: s.Now(),
	})
	if priority > s.current.Priority() {
		s.RequestPreempt()
	}
	g.Release()
	return t.ID, nil
}

// trampoline is the first frame of every spawned thread. The switch that
// first resumes the thread hands over the disabled state; the trampoline
// completes the switch, enables interrupts, runs the entry function, and
// exits the thread if the entry returns.
func (s *Scheduler) trampoline(t *kthread.Thread) {
	s.finishSwitchLocked()
	s.mu.Unlock()
	t.Entry(t.Aux)
	s.Exit()
}

// Block marks the calling thread BLOCKED and schedules the next thread. The
// caller must have disabled interrupts, must not be in interrupt context,
// and must have arranged to be woken by some other party (a wait queue, the
// sleep list, or an explicit Unblock).
func (s *Scheduler) Block() {
	t := s.current
	if t.Irq.Level() == 0 {
		klog.Fatalf("sched: Block with interrupts enabled")
	}
	if s.isr.InInterrupt() {
		klog.Fatalf("sched: Block from interrupt context")
	}
	t.SetStatus(kthread.StatusBlocked)
	s.scheduleLocked()
}

// Unblock transitions a BLOCKED thread to READY and enqueues it. It never
// preempts; callers that want the woken thread to run decide that
// themselves (see RequestPreempt). Safe to call with or without interrupts
// already disabled.
func (s *Scheduler) Unblock(t *kthread.Thread) {
	g := irq.Acquire(s)
	if t.Status() != kthread.StatusBlocked {
		klog.Fatalf("sched: Unblock of %q in status %v", t.Name, t.Status())
	}
	s.unblockLocked(t)
	g.Release()
}

// unblockLocked enqueues t READY. Interrupts disabled.
func (s *Scheduler) unblockLocked(t *kthread.Thread) {
	s.ready.Enqueue(t)
	t.SetStatus(kthread.StatusReady)
	s.events.Publish(kevents.Event{
		Kind: kevents.Unblocked, ThreadID: t.ID, ThreadName: t.Name,
		Priority: t.Priority(), Tick: s.Now(),
	})
}

// Yield surrenders the CPU, re-enqueueing the caller at the tail of its
// priority bucket. The idle thread yields without enqueueing itself; it is
// runnable only implicitly, as the fallback when every bucket is empty.
func (s *Scheduler) Yield() {
	g := irq.Acquire(s)
	if s.isr.InInterrupt() {
		klog.Fatalf("sched: Yield from interrupt context")
	}
	t := s.current
	if t != s.idle {
		s.ready.Enqueue(t)
	}
	t.SetStatus(kthread.StatusReady)
	s.scheduleLocked()
	g.Release()
}

// Exit terminates the calling thread: it is deregistered, marked DYING, and
// its stack page is reclaimed by whichever thread performs the next context
// switch. Exit does not return. The initial thread must not exit; shut the
// tick source down instead.
func (s *Scheduler) Exit() {
	s.Disable()
	t := s.current
	if s.isr.InInterrupt() {
		klog.Fatalf("sched: Exit from interrupt context")
	}
	if t == s.idle {
		klog.Fatalf("sched: idle thread exiting")
	}
	if t == s.initial {
		klog.Fatalf("sched: initial thread %q exiting", t.Name)
	}
	s.reg.Deregister(t)
	t.SetStatus(kthread.StatusDying)
	s.events.Publish(kevents.Event{
		Kind: kevents.Exited, ThreadID: t.ID, ThreadName: t.Name,
		Priority: t.Priority(), Tick: s.Now(),
	})
	next := s.ready.PickNext()
	if next == nil {
		next = s.idle
	}
	s.checkIntegrity(next)
	next.SetStatus(kthread.StatusRunning)
	s.current = next
	s.sliceCount = 0
	s.pendingYield = false
	s.reap = t
	// Hand the CPU (and the disabled state) to next; this goroutine
	// unwinds instead of parking, since nothing will ever resume it.
	s.switcher.Handoff(next)
	runtime.Goexit()
}

// SleepUntil blocks the calling thread until the tick counter reaches
// deadline. A deadline at or before the current tick returns immediately.
// The idle thread must not sleep.
func (s *Scheduler) SleepUntil(deadline uint64) {
	g := irq.Acquire(s)
	if s.isr.InInterrupt() {
		klog.Fatalf("sched: SleepUntil from interrupt context")
	}
	t := s.current
	if t == s.idle {
		klog.Fatalf("sched: idle thread sleeping")
	}
	if deadline > s.Now() {
		s.sleepers.Add(t, deadline)
		t.SetStatus(kthread.StatusBlocked)
		s.scheduleLocked()
	}
	g.Release()
}

// SetPriority changes the calling thread's priority. When the new priority
// is lower and a strictly higher-priority thread is READY, the caller
// yields. In MLFQS mode priorities evolve only through aging, so this is a
// policy no-op (still safe to call).
func (s *Scheduler) SetPriority(priority int32) {
	if priority < s.tun.PriMin || priority > s.tun.PriMax {
		klog.Fatalf("sched: SetPriority %d outside [%d, %d]", priority, s.tun.PriMin, s.tun.PriMax)
	}
	g := irq.Acquire(s)
	if !s.MLFQSEnabled() {
		t := s.current
		old := t.Priority()
		t.SetPriority(priority)
		// The caller is RUNNING, so no queue membership changes; but a
		// downgrade may leave a READY thread outranking us.
		if priority < old && s.ready.HighestReady() > priority {
			s.pendingYield = true
		}
	}
	g.Release()
}

// GetPriority returns the calling thread's priority.
func (s *Scheduler) GetPriority() int32 {
	g := irq.Acquire(s)
	p := s.current.Priority()
	g.Release()
	return p
}

// Foreach applies fn to every registered thread. The caller must have
// disabled interrupts, so that the thread population is stable under fn.
func (s *Scheduler) Foreach(fn func(*kthread.Thread)) {
	if s.current.Irq.Level() == 0 {
		klog.Fatalf("sched: Foreach with interrupts enabled")
	}
	s.reg.Foreach(fn)
}

// SetMLFQS selects the scheduling policy: when on, aging is the sole
// priority-adjustment mechanism and SetPriority becomes a no-op.
func (s *Scheduler) SetMLFQS(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	atomic.StoreInt32(&s.mlfqs, v)
}

// MLFQSEnabled reports the current scheduling policy.
func (s *Scheduler) MLFQSEnabled() bool {
	return atomic.LoadInt32(&s.mlfqs) != 0
}

// Now returns the most recent tick delivered by the tick source.
func (s *Scheduler) Now() uint64 {
	return atomic.LoadUint64(&s.now)
}

// AwaitTick blocks until the next timer tick is delivered. It is the idle
// thread's halt: called with interrupts enabled, it returns once the timer
// fires, the way a halted CPU resumes on the next interrupt.
func (s *Scheduler) AwaitTick() {
	<-s.tickPulse
}

// --------------------------------
// Internal scheduling

// scheduleLocked picks the next thread and switches to it. Preconditions:
// interrupts disabled, caller's status already set to something other than
// RUNNING. Returns when the calling thread is next switched back to.
func (s *Scheduler) scheduleLocked() {
	prev := s.current
	if prev.Status() == kthread.StatusRunning {
		klog.Fatalf("sched: schedule with %q still RUNNING", prev.Name)
	}
	s.checkIntegrity(prev)
	next := s.ready.PickNext()
	if next == nil {
		next = s.idle
	}
	if next == nil {
		klog.Fatalf("sched: no runnable thread and no idle thread")
	}
	s.checkIntegrity(next)
	next.SetStatus(kthread.StatusRunning)
	s.current = next
	s.sliceCount = 0
	s.pendingYield = false
	s.switcher.Switch(prev, next)
	// Running as prev again, after some later switch back to it.
	s.finishSwitchLocked()
}

// finishSwitchLocked completes a context switch on the destination thread:
// if the previous thread was DYING, its stack page is reclaimed here, safely
// after that thread has stopped using it.
func (s *Scheduler) finishSwitchLocked() {
	if dead := s.reap; dead != nil {
		s.reap = nil
		if dead.Stack != nil {
			dead.Stack.Free()
		}
	}
}

// checkIntegrity halts on a corrupted thread record.
func (s *Scheduler) checkIntegrity(t *kthread.Thread) {
	if !s.reg.CheckIntegrity(t) {
		klog.Fatalf("sched: integrity cookie mismatch on thread %q (tid %d); kernel stack overflow?", t.Name, t.ID)
	}
}
