// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksync

import (
	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/klog"
	"coresched.dev/kernel/kthread"
	"coresched.dev/kernel/sched"
)

// A Lock is a mutual-exclusion lock: a binary semaphore plus an owner. Only
// the owner may release it, and the owner must not acquire it a second time.
// The owner pointer is a weak reference; a thread must not exit while
// holding a lock.
//
// Unlike the semaphore, a lock is never operated on from interrupt context.
type Lock struct {
	sem   Semaphore
	owner *kthread.Thread
}

// NewLock returns an unheld lock.
func NewLock(s *sched.Scheduler) *Lock {
	return &Lock{sem: Semaphore{sched: s, count: 1}}
}

// Acquire takes the lock, blocking until it is free. Recursive acquisition
// by the owner is a fatal assertion.
func (l *Lock) Acquire() {
	g := irq.Acquire(l.sem.sched)
	if l.sem.sched.InInterrupt() {
		klog.Fatalf("ksync: Lock.Acquire from interrupt context")
	}
	t := l.sem.sched.Running()
	if l.owner == t {
		klog.Fatalf("ksync: recursive Lock.Acquire by %q", t.Name)
	}
	l.sem.down()
	l.owner = t
	g.Release()
}

// TryAcquire takes the lock if it is free, without blocking, and reports
// whether it did.
func (l *Lock) TryAcquire() bool {
	g := irq.Acquire(l.sem.sched)
	t := l.sem.sched.Running()
	if l.owner == t {
		klog.Fatalf("ksync: recursive Lock.TryAcquire by %q", t.Name)
	}
	ok := l.sem.count > 0
	if ok {
		l.sem.count--
		l.owner = t
	}
	g.Release()
	return ok
}

// Release frees the lock, waking the highest-priority waiter if any. Only
// the owner may release; anything else is a fatal assertion.
func (l *Lock) Release() {
	g := irq.Acquire(l.sem.sched)
	t := l.sem.sched.Running()
	if l.owner != t {
		klog.Fatalf("ksync: Lock.Release by %q, which does not hold it", t.Name)
	}
	l.owner = nil
	l.sem.up()
	g.Release()
}

// HeldByCurrent reports whether the calling thread owns the lock.
func (l *Lock) HeldByCurrent() bool {
	g := irq.Acquire(l.sem.sched)
	held := l.owner == l.sem.sched.Running()
	g.Release()
	return held
}
