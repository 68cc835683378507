// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kthread implements the per-thread control block and the global
// thread registry. A Thread carries exactly the fields the data model
// requires: a stable identifier, a name, a scheduling status, a priority, a
// kernel-stack handle, a wakeup deadline, one container-membership tag, and
// an integrity cookie.
package kthread

import (
	"container/list"
	"sync/atomic"

	"coresched.dev/kernel/irq"
	"v.io/x/lib/uniqueid"
)

// Status is a thread's scheduling status.
type Status int32

const (
	StatusBlocked Status = iota
	StatusReady
	StatusRunning
	StatusDying
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "BLOCKED"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusDying:
		return "DYING"
	default:
		return "UNKNOWN"
	}
}

// Container identifies which single scheduling container, if any, currently
// owns a thread. A thread is in at most one container at a time; see
// EnterContainer/LeaveContainer.
type Container uint8

const (
	ContainerNone Container = iota
	ContainerReady
	ContainerSleep
	ContainerWait
)

// PageHandle is the narrow interface a stack-page allocation must satisfy to
// back a Thread; platform.PageAllocator returns values implementing it.
type PageHandle interface {
	Free()
}

// Thread is the control block for a single schedulable entity.
// Status/priority/container are mutated only by the goroutine currently
// holding the logical CPU (see platform.Switcher), so plain loads/stores
// would be memory-model-safe in principle, but every field that can be
// observed from outside that discipline (Foreach, test assertions) uses
// atomic access.
type Thread struct {
	ID     uint64
	Name   string
	Cookie uniqueid.ID

	Irq  irq.Counter
	gate gate

	Entry func(aux interface{})
	Aux   interface{}
	Stack PageHandle

	status     int32 // Status, atomic
	priority   int32 // atomic
	container  int32 // Container, atomic
	wakeupTick uint64

	// ReadyElem is the list.Element this thread occupies in its ready
	// bucket. Valid only while Container() == ContainerReady; owned by
	// package readyq.
	ReadyElem *list.Element

	// WaitHeapIndex is the container/heap index this thread occupies in a
	// ksync wait queue. Valid only while Container() == ContainerWait;
	// owned by package ksync.
	WaitHeapIndex int
}

// New allocates a Thread. The thread starts BLOCKED with no container, per
// the spawn lifecycle ("allocated, initialized BLOCKED, registered globally,
// then immediately unblocked into READY").
func New(id uint64, name string, priority int32, entry func(aux interface{}), aux interface{}, stack PageHandle) *Thread {
	t := &Thread{
		ID:     id,
		Name:   name,
		Entry:  entry,
		Aux:    aux,
		Stack:  stack,
		status: int32(StatusBlocked),
	}
	t.gate.init()
	atomic.StoreInt32(&t.priority, priority)
	cookie, err := uniqueid.Random()
	if err != nil {
		panic("kthread: failed to mint integrity cookie: " + err.Error())
	}
	t.Cookie = cookie
	return t
}

// Status returns the thread's current scheduling status.
func (t *Thread) Status() Status {
	return Status(atomic.LoadInt32(&t.status))
}

// SetStatus sets the thread's scheduling status.
func (t *Thread) SetStatus(s Status) {
	atomic.StoreInt32(&t.status, int32(s))
}

// Priority returns the thread's current priority.
func (t *Thread) Priority() int32 {
	return atomic.LoadInt32(&t.priority)
}

// SetPriority overwrites the thread's raw priority field. Policy decisions
// (clamping, MLFQS no-op, preemption checks) live in package sched; this is
// the mechanical mutator aging and set_priority both funnel through.
func (t *Thread) SetPriority(p int32) {
	atomic.StoreInt32(&t.priority, p)
}

// Container returns the container currently owning this thread.
func (t *Thread) Container() Container {
	return Container(atomic.LoadInt32(&t.container))
}

// EnterContainer transitions the thread into container c. It panics if the
// thread is already in a container, enforcing the "at most one scheduling
// container at a time" invariant at every transition.
func (t *Thread) EnterContainer(c Container) {
	if prev := t.Container(); prev != ContainerNone {
		panic("kthread: thread " + t.Name + " entering container while already in one")
	}
	atomic.StoreInt32(&t.container, int32(c))
}

// LeaveContainer transitions the thread out of container c back to
// ContainerNone. It panics if the thread was not in exactly that container.
func (t *Thread) LeaveContainer(c Container) {
	if prev := t.Container(); prev != c {
		panic("kthread: thread " + t.Name + " leaving container it was not in")
	}
	atomic.StoreInt32(&t.container, int32(ContainerNone))
}

// WakeupTick returns the deadline set by the most recent SetWakeupTick call.
// Valid only while Container() == ContainerSleep.
func (t *Thread) WakeupTick() uint64 {
	return atomic.LoadUint64(&t.wakeupTick)
}

// SetWakeupTick records the deadline used by package sleepq.
func (t *Thread) SetWakeupTick(tick uint64) {
	atomic.StoreUint64(&t.wakeupTick, tick)
}

// Park blocks the calling goroutine until platform.Switcher resumes this
// thread. Exactly one thread's goroutine is ever unparked at a time.
func (t *Thread) Park() {
	t.gate.p()
}

// Resume signals this thread's rendezvous gate, waking its goroutine.
func (t *Thread) Resume() {
	t.gate.v()
}
