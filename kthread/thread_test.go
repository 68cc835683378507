// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kthread

import "testing"

func TestContainerInvariant(t *testing.T) {
	th := New(1, "t", 31, nil, nil, nil)
	if c := th.Container(); c != ContainerNone {
		t.Fatalf("new thread container = %v, want ContainerNone", c)
	}
	th.EnterContainer(ContainerReady)
	if c := th.Container(); c != ContainerReady {
		t.Fatalf("container = %v, want ContainerReady", c)
	}
	th.LeaveContainer(ContainerReady)
	if c := th.Container(); c != ContainerNone {
		t.Fatalf("container after leave = %v, want ContainerNone", c)
	}
}

func TestEnterContainerPanicsWhenAlreadyOwned(t *testing.T) {
	th := New(1, "t", 31, nil, nil, nil)
	th.EnterContainer(ContainerReady)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic entering a second container")
		}
	}()
	th.EnterContainer(ContainerSleep)
}

func TestLeaveContainerPanicsOnMismatch(t *testing.T) {
	th := New(1, "t", 31, nil, nil, nil)
	th.EnterContainer(ContainerReady)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic leaving the wrong container")
		}
	}()
	th.LeaveContainer(ContainerWait)
}

func TestGateRendezvous(t *testing.T) {
	th := New(1, "t", 31, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		th.Park()
		close(done)
	}()
	th.Resume()
	<-done
}

func TestDistinctCookies(t *testing.T) {
	a := New(1, "a", 31, nil, nil, nil)
	b := New(2, "b", 31, nil, nil, nil)
	if a.Cookie == b.Cookie {
		t.Fatal("two threads minted identical integrity cookies")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	id1 := r.AllocID()
	id2 := r.AllocID()
	if id1 == id2 {
		t.Fatalf("AllocID returned duplicate IDs: %d, %d", id1, id2)
	}
	th := New(id1, "main", 31, nil, nil, nil)
	r.Register(th)
	if r.Lookup(id1) != th {
		t.Fatal("Lookup did not return the registered thread")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	r.Deregister(th)
	if r.Lookup(id1) != nil {
		t.Fatal("thread still reachable after Deregister")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after deregister", r.Len())
	}
}

func TestCheckIntegrity(t *testing.T) {
	r := NewRegistry()
	th := New(r.AllocID(), "t", 31, nil, nil, nil)
	r.Register(th)
	if !r.CheckIntegrity(th) {
		t.Fatal("CheckIntegrity false for a pristine thread")
	}
	th.Cookie[0] ^= 0xff // a stack overflow would scribble here
	if r.CheckIntegrity(th) {
		t.Fatal("CheckIntegrity true for a clobbered cookie")
	}
}

func TestForeach(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		id := r.AllocID()
		r.Register(New(id, "t", 31, nil, nil, nil))
	}
	count := 0
	r.Foreach(func(*Thread) { count++ })
	if count != 3 {
		t.Fatalf("Foreach visited %d threads, want 3", count)
	}
}
