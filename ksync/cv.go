// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksync

import (
	"sort"

	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/klog"
	"coresched.dev/kernel/kthread"
	"coresched.dev/kernel/sched"
)

// A CV is a condition variable of the monitor style: Wait atomically
// releases the associated lock and blocks, and Signal wakes the waiter whose
// thread has the highest current priority.
//
// Each waiter blocks on a private binary semaphore held in a per-wait
// record, so a Signal targets exactly one thread; the condition's own list
// holds the records, not the threads. The record lives on Wait's frame and
// dies when Wait returns.
type CV struct {
	sched   *sched.Scheduler
	waiters []*cvWaiter
}

type cvWaiter struct {
	sem Semaphore
	t   *kthread.Thread
}

// NewCV returns a condition variable with no waiters, to be used with locks
// created against the same scheduler.
func NewCV(s *sched.Scheduler) *CV {
	return &CV{sched: s}
}

// Wait atomically releases lock and blocks until another thread signals this
// condition, then re-acquires lock before returning. The caller must hold
// lock. As with any Mesa-style condition variable, the awaited predicate
// must be re-checked by the caller on return.
func (c *CV) Wait(lock *Lock) {
	g := irq.Acquire(c.sched)
	if c.sched.InInterrupt() {
		klog.Fatalf("ksync: CV.Wait from interrupt context")
	}
	t := c.sched.Running()
	if lock.owner != t {
		klog.Fatalf("ksync: CV.Wait by %q without holding the lock", t.Name)
	}
	w := &cvWaiter{sem: Semaphore{sched: c.sched}, t: t}
	c.insert(w)
	g.Release()

	lock.Release()
	w.sem.Down()
	lock.Acquire()
}

// insert places w in the waiter list, ordered by its thread's priority,
// newest last among equals. Interrupts disabled.
func (c *CV) insert(w *cvWaiter) {
	p := w.t.Priority()
	i := sort.Search(len(c.waiters), func(i int) bool {
		return c.waiters[i].t.Priority() < p
	})
	c.waiters = append(c.waiters, nil)
	copy(c.waiters[i+1:], c.waiters[i:])
	c.waiters[i] = w
}

// Signal wakes the waiter whose thread has the highest current priority, if
// any. The caller must hold lock. Waiter priorities may have changed since
// they queued, so the list is re-sorted against live priorities before the
// head is taken; the wakeup itself delivers any needed preemption.
func (c *CV) Signal(lock *Lock) {
	g := irq.Acquire(c.sched)
	t := c.sched.Running()
	if lock.owner != t {
		klog.Fatalf("ksync: CV.Signal by %q without holding the lock", t.Name)
	}
	if len(c.waiters) > 0 {
		sort.SliceStable(c.waiters, func(i, j int) bool {
			return c.waiters[i].t.Priority() > c.waiters[j].t.Priority()
		})
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		w.sem.up()
	}
	g.Release()
}

// Broadcast wakes every waiter, highest-priority first. The caller must
// hold lock.
func (c *CV) Broadcast(lock *Lock) {
	for {
		g := irq.Acquire(c.sched)
		empty := len(c.waiters) == 0
		g.Release()
		if empty {
			return
		}
		c.Signal(lock)
	}
}
