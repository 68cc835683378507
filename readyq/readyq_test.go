// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readyq

import (
	"testing"

	"coresched.dev/kernel/kthread"
)

func newThread(id uint64, name string, priority int32) *kthread.Thread {
	return kthread.New(id, name, priority, nil, nil, nil)
}

func TestPicksHighestPriority(t *testing.T) {
	q := New(0, 63)
	lo := newThread(1, "lo", 10)
	hi := newThread(2, "hi", 40)
	mid := newThread(3, "mid", 20)
	q.Enqueue(lo)
	q.Enqueue(hi)
	q.Enqueue(mid)

	if got := q.PickNext(); got != hi {
		t.Fatalf("PickNext = %v, want hi", got.Name)
	}
	if got := q.PickNext(); got != mid {
		t.Fatalf("PickNext = %v, want mid", got.Name)
	}
	if got := q.PickNext(); got != lo {
		t.Fatalf("PickNext = %v, want lo", got.Name)
	}
	if got := q.PickNext(); got != nil {
		t.Fatalf("PickNext on empty queue = %v, want nil", got)
	}
}

func TestPriorityFIFO(t *testing.T) {
	q := New(0, 63)
	var threads []*kthread.Thread
	for i := 0; i < 5; i++ {
		th := newThread(uint64(i+1), "same", 31)
		threads = append(threads, th)
		q.Enqueue(th)
	}
	for i, want := range threads {
		if got := q.PickNext(); got != want {
			t.Fatalf("pop %d = %v, want %v (FIFO within priority violated)", i, got.Name, want.Name)
		}
	}
}

func TestHighestReadyCache(t *testing.T) {
	q := New(0, 63)
	if q.HighestReady() != 0 {
		t.Fatalf("HighestReady on empty queue = %d, want 0", q.HighestReady())
	}
	hi := newThread(1, "hi", 50)
	q.Enqueue(hi)
	if q.HighestReady() != 50 {
		t.Fatalf("HighestReady = %d, want 50", q.HighestReady())
	}
	q.PickNext()
	if q.HighestReady() != 0 {
		t.Fatalf("HighestReady after draining = %d, want 0", q.HighestReady())
	}
}

func TestRemoveForAgingPromotion(t *testing.T) {
	q := New(0, 63)
	lo := newThread(1, "lo", 20)
	q.Enqueue(lo)
	q.Remove(lo)
	lo.SetPriority(21)
	q.Enqueue(lo)
	if q.HighestReady() != 21 {
		t.Fatalf("HighestReady after promotion = %d, want 21", q.HighestReady())
	}
	if got := q.PickNext(); got != lo {
		t.Fatal("promoted thread not returned by PickNext")
	}
}

func TestPromoteAll(t *testing.T) {
	q := New(0, 63)
	a := newThread(1, "a", 20)
	b := newThread(2, "b", 20)
	top := newThread(3, "top", 63)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(top)

	q.PromoteAll(63)
	if a.Priority() != 21 || b.Priority() != 21 {
		t.Fatalf("promoted priorities = %d, %d, want 21, 21", a.Priority(), b.Priority())
	}
	if top.Priority() != 63 {
		t.Fatalf("top priority = %d, want clamped at 63", top.Priority())
	}
	if q.HighestReady() != 63 {
		t.Fatalf("HighestReady = %d, want 63", q.HighestReady())
	}
	// FIFO order survives the promotion.
	q.PickNext() // top
	if got := q.PickNext(); got != a {
		t.Fatalf("first promoted pop = %v, want a", got.Name)
	}
	if got := q.PickNext(); got != b {
		t.Fatalf("second promoted pop = %v, want b", got.Name)
	}
}

func TestPromoteAllIntoOccupiedBucket(t *testing.T) {
	q := New(0, 63)
	resident := newThread(1, "resident", 21)
	climber := newThread(2, "climber", 20)
	q.Enqueue(resident)
	q.Enqueue(climber)
	q.PromoteAll(63)
	// Both moved up one; the resident stays ahead.
	if got := q.PickNext(); got != resident {
		t.Fatalf("first pop = %v, want resident", got.Name)
	}
	if got := q.PickNext(); got != climber {
		t.Fatalf("second pop = %v, want climber", got.Name)
	}
}

func TestEmpty(t *testing.T) {
	q := New(0, 63)
	if !q.Empty() {
		t.Fatal("new queue reports non-empty")
	}
	th := newThread(1, "t", 31)
	q.Enqueue(th)
	if q.Empty() {
		t.Fatal("queue with one thread reports empty")
	}
}
