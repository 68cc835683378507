// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package readyq implements the scheduler's ready-queue array: PRI_MAX+1
// bucketed FIFO lists indexed by priority, plus a cached index of the
// highest non-empty bucket.
package readyq

import (
	"container/list"

	"coresched.dev/kernel/kthread"
)

// Queues is a fixed-size array of per-priority FIFO buckets.
type Queues struct {
	buckets []list.List
	priMin  int32
	highest int32
}

// New returns an empty Queues sized for priorities in [priMin, priMax].
func New(priMin, priMax int32) *Queues {
	q := &Queues{
		buckets: make([]list.List, priMax-priMin+1),
		priMin:  priMin,
		highest: priMin,
	}
	for i := range q.buckets {
		q.buckets[i].Init()
	}
	return q
}

func (q *Queues) index(priority int32) int {
	return int(priority - q.priMin)
}

// Enqueue appends t to the tail of its priority bucket and updates the
// cached highest-ready index. t must not currently be in any container.
func (q *Queues) Enqueue(t *kthread.Thread) {
	elem := q.buckets[q.index(t.Priority())].PushBack(t)
	t.ReadyElem = elem
	t.EnterContainer(kthread.ContainerReady)
	if t.Priority() > q.highest {
		q.highest = t.Priority()
	}
}

// PickNext scans from the cached highest bucket downward, pops the head of
// the first non-empty bucket (FIFO within a priority), and re-derives the
// cached highest if that bucket becomes empty. It returns nil if every
// bucket is empty; callers substitute the idle thread in that case.
func (q *Queues) PickNext() *kthread.Thread {
	for p := q.highest; p >= q.priMin; p-- {
		b := &q.buckets[q.index(p)]
		if front := b.Front(); front != nil {
			t := front.Value.(*kthread.Thread)
			b.Remove(front)
			t.ReadyElem = nil
			t.LeaveContainer(kthread.ContainerReady)
			if b.Len() == 0 && p == q.highest {
				q.highest = q.recomputeHighest()
			}
			return t
		}
	}
	return nil
}

// Remove detaches t from its current bucket, used by aging promotion to
// relocate a READY thread into a higher bucket. t must currently be READY.
func (q *Queues) Remove(t *kthread.Thread) {
	p := t.Priority()
	b := &q.buckets[q.index(p)]
	b.Remove(t.ReadyElem)
	t.ReadyElem = nil
	t.LeaveContainer(kthread.ContainerReady)
	if b.Len() == 0 && p == q.highest {
		q.highest = q.recomputeHighest()
	}
}

// PromoteAll raises every queued thread's priority by one, clamped at
// priMax: each thread below the top bucket is detached and appended to the
// tail of the next higher bucket. Buckets are visited from high to low so a
// promoted thread lands behind the existing residents of its new bucket and
// is not promoted twice in one pass.
func (q *Queues) PromoteAll(priMax int32) {
	for p := priMax - 1; p >= q.priMin; p-- {
		b := &q.buckets[q.index(p)]
		for b.Len() > 0 {
			front := b.Front()
			t := front.Value.(*kthread.Thread)
			b.Remove(front)
			t.ReadyElem = nil
			t.LeaveContainer(kthread.ContainerReady)
			t.SetPriority(p + 1)
			q.Enqueue(t)
		}
	}
}

// HighestReady returns the cached highest non-empty bucket index, or priMin
// when every bucket is empty.
func (q *Queues) HighestReady() int32 {
	return q.highest
}

// Empty reports whether every bucket is empty.
func (q *Queues) Empty() bool {
	for i := range q.buckets {
		if q.buckets[i].Len() != 0 {
			return false
		}
	}
	return true
}

func (q *Queues) recomputeHighest() int32 {
	for p := int32(len(q.buckets)-1) + q.priMin; p >= q.priMin; p-- {
		if q.buckets[q.index(p)].Len() != 0 {
			return p
		}
	}
	return q.priMin
}
