// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sleepq

import (
	"testing"

	"coresched.dev/kernel/kthread"
)

func TestNextWakeupEmpty(t *testing.T) {
	l := New()
	if l.NextWakeup() != NoWakeup {
		t.Fatalf("NextWakeup() on empty list = %d, want NoWakeup", l.NextWakeup())
	}
}

func TestAddUpdatesMinimum(t *testing.T) {
	l := New()
	a := kthread.New(1, "a", 31, nil, nil, nil)
	b := kthread.New(2, "b", 31, nil, nil, nil)
	l.Add(a, 100)
	l.Add(b, 50)
	if l.NextWakeup() != 50 {
		t.Fatalf("NextWakeup() = %d, want 50", l.NextWakeup())
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
}

func TestWakeReturnsDueThreadsOnly(t *testing.T) {
	l := New()
	a := kthread.New(1, "a", 31, nil, nil, nil)
	b := kthread.New(2, "b", 31, nil, nil, nil)
	c := kthread.New(3, "c", 31, nil, nil, nil)
	l.Add(a, 10)
	l.Add(b, 20)
	l.Add(c, 30)

	woken := l.Wake(20)
	if len(woken) != 2 {
		t.Fatalf("Wake(20) woke %d threads, want 2", len(woken))
	}
	for _, th := range woken {
		if th.Container() != kthread.ContainerNone {
			t.Fatalf("woken thread %s still in a container", th.Name)
		}
	}
	if l.Len() != 1 {
		t.Fatalf("Len() after wake = %d, want 1", l.Len())
	}
	if l.NextWakeup() != 30 {
		t.Fatalf("NextWakeup() after wake = %d, want 30", l.NextWakeup())
	}
}

func TestWakeNoneDue(t *testing.T) {
	l := New()
	a := kthread.New(1, "a", 31, nil, nil, nil)
	l.Add(a, 100)
	if woken := l.Wake(10); woken != nil {
		t.Fatalf("Wake(10) woke %d threads, want 0", len(woken))
	}
	if l.Len() != 1 {
		t.Fatal("thread removed from sleep list despite deadline not reached")
	}
}
