// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksync

import (
	"container/heap"

	"coresched.dev/kernel/kthread"
)

// A waitQueue holds the threads blocked on a synchronization primitive,
// ordered by priority with FIFO among equals. Priorities mutate while
// threads are queued (aging promotes READY threads, and a queued thread's
// priority can be raised before it next runs), so the ordering key is always
// re-read from the live thread record: popHighest re-establishes the heap
// against current priorities before popping, the moral equivalent of
// re-sorting the waiter list on every release.
type waitQueue struct {
	entries []waitEntry
	seq     uint64
}

type waitEntry struct {
	t *kthread.Thread
	// seq breaks priority ties in arrival order.
	seq uint64
}

func (q *waitQueue) Len() int { return len(q.entries) }

func (q *waitQueue) Less(i, j int) bool {
	pi, pj := q.entries[i].t.Priority(), q.entries[j].t.Priority()
	if pi != pj {
		return pi > pj
	}
	return q.entries[i].seq < q.entries[j].seq
}

func (q *waitQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].t.WaitHeapIndex = i
	q.entries[j].t.WaitHeapIndex = j
}

func (q *waitQueue) Push(x interface{}) {
	e := x.(waitEntry)
	e.t.WaitHeapIndex = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *waitQueue) Pop() interface{} {
	n := len(q.entries) - 1
	e := q.entries[n]
	q.entries = q.entries[:n]
	return e
}

// add inserts t, taking container ownership of it.
func (q *waitQueue) add(t *kthread.Thread) {
	t.EnterContainer(kthread.ContainerWait)
	q.seq++
	heap.Push(q, waitEntry{t: t, seq: q.seq})
}

// popHighest removes and returns the queued thread with the highest current
// priority, releasing container ownership. The heap order is rebuilt first,
// since queued threads' priorities may have changed since insertion.
func (q *waitQueue) popHighest() *kthread.Thread {
	heap.Init(q)
	e := heap.Pop(q).(waitEntry)
	e.t.WaitHeapIndex = 0
	e.t.LeaveContainer(kthread.ContainerWait)
	return e.t
}
