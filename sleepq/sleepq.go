// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sleepq implements the sleep list: an unordered collection of
// BLOCKED threads keyed by wakeup_tick, with a cached earliest deadline.
package sleepq

import (
	"math"

	"coresched.dev/kernel/kthread"
)

// NoWakeup is the sentinel "+infinity" value NextWakeup returns when the
// sleep list is empty.
const NoWakeup = uint64(math.MaxUint64)

// List is the sleep list. The zero value is not ready to use; call New.
type List struct {
	threads    []*kthread.Thread
	nextWakeup uint64
}

// New returns an empty sleep list.
func New() *List {
	return &List{nextWakeup: NoWakeup}
}

// Add appends t to the sleep list with the given deadline and updates the
// cached minimum. The caller is responsible for having set t's status to
// BLOCKED and disabled interrupts around the transition; Add only manages
// list membership.
func (l *List) Add(t *kthread.Thread, deadline uint64) {
	t.SetWakeupTick(deadline)
	t.EnterContainer(kthread.ContainerSleep)
	l.threads = append(l.threads, t)
	if deadline < l.nextWakeup {
		l.nextWakeup = deadline
	}
}

// Wake detaches and returns every thread whose deadline is <= now,
// recomputing the cached minimum from the remaining entries. Callers
// unblock each returned thread (via sched.Unblock) and run it through the
// scheduler as appropriate.
func (l *List) Wake(now uint64) []*kthread.Thread {
	if len(l.threads) == 0 || now < l.nextWakeup {
		return nil
	}
	var woken []*kthread.Thread
	remaining := l.threads[:0]
	for _, t := range l.threads {
		if t.WakeupTick() <= now {
			t.LeaveContainer(kthread.ContainerSleep)
			woken = append(woken, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	l.threads = remaining
	l.nextWakeup = NoWakeup
	for _, t := range l.threads {
		if d := t.WakeupTick(); d < l.nextWakeup {
			l.nextWakeup = d
		}
	}
	return woken
}

// NextWakeup returns the minimum wakeup_tick over the sleep list, or
// NoWakeup when it is empty.
func (l *List) NextWakeup() uint64 {
	return l.nextWakeup
}

// Len reports how many threads are currently sleeping.
func (l *List) Len() int {
	return len(l.threads)
}
