// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"coresched.dev/kernel/boot"
	"coresched.dev/kernel/config"
	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/kevents"
	"coresched.dev/kernel/ksync"
	"coresched.dev/kernel/kthread"
	"coresched.dev/kernel/platform"
	"coresched.dev/kernel/sched"
	"v.io/x/lib/set"
)

// newTestKernel boots a scheduler on the calling goroutine, which becomes
// thread "main", plus a tick source the test steps by hand for determinism.
func newTestKernel(t *testing.T, tun config.Tunables) (*sched.Scheduler, *platform.TickSource) {
	t.Helper()
	s := boot.Init(tun, platform.NewSwitcher(), platform.NewPageAllocator(), kevents.NewPublisher())
	boot.Start(s)
	return s, platform.NewTickSource(s)
}

func TestSpawnHigherPriorityPreemptsCreator(t *testing.T) {
	s, _ := newTestKernel(t, config.Default())
	var ran int32
	if _, err := s.Spawn("hi", 40, func(interface{}) {
		atomic.StoreInt32(&ran, 1)
	}, nil); err != nil {
		t.Fatal(err)
	}
	// The new thread outranks main, so it must have run to completion
	// before Spawn returned.
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("higher-priority spawn did not preempt its creator")
	}
}

func TestSpawnLowerPriorityDoesNotPreempt(t *testing.T) {
	s, _ := newTestKernel(t, config.Default())
	var ran int32
	s.Spawn("lo", 20, func(interface{}) {
		atomic.StoreInt32(&ran, 1)
	}, nil)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("lower-priority spawn ran before its creator yielded")
	}
	s.SetPriority(config.Default().PriMin)
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("lower-priority thread did not run after the creator stepped down")
	}
	s.SetPriority(config.Default().PriDefault)
}

func TestSetPriorityDowngradeYields(t *testing.T) {
	s, _ := newTestKernel(t, config.Default())
	var ran int32
	s.Spawn("mid", 25, func(interface{}) {
		atomic.StoreInt32(&ran, 1)
	}, nil)
	s.SetPriority(20)
	// 25 > 20, so the downgrade must have yielded to the READY thread.
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("SetPriority downgrade did not yield to a higher-priority READY thread")
	}
	s.SetPriority(config.Default().PriDefault)
}

func TestFIFOWithinPriority(t *testing.T) {
	tun := config.Default()
	s, _ := newTestKernel(t, tun)
	mu := ksync.NewLock(s)
	done := ksync.NewSemaphore(s, 0)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Spawn(fmt.Sprintf("peer-%d", i), tun.PriDefault-1, func(interface{}) {
			mu.Acquire()
			order = append(order, i)
			mu.Release()
			s.Yield()
			done.Up()
		}, nil)
	}
	s.SetPriority(tun.PriMin)
	s.Yield()
	s.SetPriority(tun.PriDefault)
	for i := 0; i < 5; i++ {
		done.Down()
	}
	for i := range order {
		if order[i] != i {
			t.Fatalf("run order %v does not match creation order", order)
		}
	}
}

func TestSleepUntilWakesOnDeadline(t *testing.T) {
	s, ts := newTestKernel(t, config.Default())
	var wokeAt uint64
	done := ksync.NewSemaphore(s, 0)
	s.Spawn("sleeper", 40, func(interface{}) {
		s.SleepUntil(3)
		atomic.StoreUint64(&wokeAt, s.Now())
		done.Up()
	}, nil)
	// The sleeper outranks main, so it ran to its SleepUntil and blocked.
	for i := 0; i < 2; i++ {
		ts.Step()
		if atomic.LoadUint64(&wokeAt) != 0 {
			t.Fatalf("sleeper woke at tick %d, before its deadline", ts.Now())
		}
	}
	ts.Step() // tick 3: deadline reached
	s.Preempt()
	done.Down()
	if got := atomic.LoadUint64(&wokeAt); got != 3 {
		t.Fatalf("sleeper woke at tick %d, want 3", got)
	}
}

func TestSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	s, ts := newTestKernel(t, config.Default())
	ts.Step()
	ts.Step()
	s.SleepUntil(1) // already past; must not block forever
}

func TestAgingPromotesReadyThreads(t *testing.T) {
	tun := config.Default()
	s, ts := newTestKernel(t, tun)
	tid, _ := s.Spawn("waiter", 30, func(interface{}) {}, nil)
	w := s.Registry().Lookup(tid)

	for step := 1; step <= 8; step++ {
		ts.Step()
		want := int32(30 + step/int(tun.AgingTicks))
		if got := w.Priority(); got != want {
			t.Fatalf("after %d ticks waiter priority = %d, want %d", step, got, want)
		}
	}
	// 32 > main's 31 now; a preemption point hands the CPU over.
	s.Preempt()
	if s.Registry().Lookup(tid) != nil {
		t.Fatal("promoted thread did not run at a preemption point")
	}
}

func TestAgingClampsAtPriMax(t *testing.T) {
	tun := config.Default()
	s, ts := newTestKernel(t, tun)
	s.SetPriority(tun.PriMax)
	tid, _ := s.Spawn("climber", tun.PriMax-1, func(interface{}) {}, nil)
	w := s.Registry().Lookup(tid)
	for i := 0; i < 12; i++ {
		ts.Step()
	}
	if got := w.Priority(); got != tun.PriMax {
		t.Fatalf("climber priority = %d, want clamped at %d", got, tun.PriMax)
	}
	s.SetPriority(tun.PriDefault) // lets the climber run and exit
}

func TestAgingPreservesFIFOWithinBucket(t *testing.T) {
	tun := config.Default()
	s, ts := newTestKernel(t, tun)
	mu := ksync.NewLock(s)
	done := ksync.NewSemaphore(s, 0)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.Spawn(fmt.Sprintf("aged-%d", i), 20, func(interface{}) {
			mu.Acquire()
			order = append(order, i)
			mu.Release()
			done.Up()
		}, nil)
	}
	// Promote the whole bucket a few times, then let it drain.
	for i := 0; i < 8; i++ {
		ts.Step()
	}
	s.SetPriority(tun.PriMin)
	for i := 0; i < 3; i++ {
		done.Down()
	}
	s.SetPriority(tun.PriDefault)
	for i := range order {
		if order[i] != i {
			t.Fatalf("order after aging %v, want creation order", order)
		}
	}
}

func TestMLFQSModeDisablesSetPriority(t *testing.T) {
	tun := config.Default()
	tun.MLFQS = true
	s, _ := newTestKernel(t, tun)
	if !s.MLFQSEnabled() {
		t.Fatal("MLFQS mode not enabled")
	}
	before := s.GetPriority()
	s.SetPriority(tun.PriMin) // policy no-op, still safe
	if got := s.GetPriority(); got != before {
		t.Fatalf("SetPriority changed priority to %d in MLFQS mode", got)
	}
}

func TestTimeSlicePreemptsAtBoundary(t *testing.T) {
	tun := config.Default()
	tun.AgingTicks = 1000 // keep aging out of the picture
	s, ts := newTestKernel(t, tun)
	var ran int32
	done := ksync.NewSemaphore(s, 0)
	s.Spawn("peer", tun.PriDefault, func(interface{}) {
		atomic.StoreInt32(&ran, 1)
		done.Up()
	}, nil)
	// Same priority: no preemption until the slice expires.
	for i := 0; i < int(tun.TimeSlice)-1; i++ {
		ts.Step()
		s.Preempt()
		if atomic.LoadInt32(&ran) != 0 {
			t.Fatalf("peer ran after %d ticks, before the slice expired", i+1)
		}
	}
	ts.Step()
	s.Preempt() // slice exhausted: main rotates to the tail of its bucket
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("peer did not run when the time slice expired")
	}
	done.Down()
}

func TestUnblockDoesNotPreempt(t *testing.T) {
	s, _ := newTestKernel(t, config.Default())
	var ran int32
	done := ksync.NewSemaphore(s, 0)
	tid, _ := s.Spawn("hi", 50, func(interface{}) {
		// Block bare: woken only by the explicit Unblock below.
		g := irq.Acquire(s)
		s.Block()
		g.Release()
		atomic.StoreInt32(&ran, 1)
		done.Up()
	}, nil)
	// The spawn preempted us; "hi" has since blocked itself.
	th := s.Registry().Lookup(tid)
	if th == nil || th.Status() != kthread.StatusBlocked {
		t.Fatal("hi is not blocked")
	}
	s.Unblock(th)
	// hi outranks main, but Unblock must not preempt on its own.
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("Unblock preempted the caller")
	}
	s.Yield()
	done.Down()
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("hi never resumed")
	}
}

// TestContainerInvariant mechanically checks that every thread is in the one
// container matching its status, and that no thread id appears in two
// container classes at once.
func TestContainerInvariant(t *testing.T) {
	tun := config.Default()
	s, ts := newTestKernel(t, tun)
	sem := ksync.NewSemaphore(s, 0)
	s.Spawn("ready", 20, func(interface{}) {}, nil)
	s.Spawn("waitq", 40, func(interface{}) { sem.Down() }, nil)
	s.Spawn("asleep", 40, func(interface{}) { s.SleepUntil(s.Now() + 100) }, nil)

	checkContainers(t, s)
	ts.Step()
	checkContainers(t, s)

	sem.Up()
	s.SetPriority(tun.PriMin)
	s.SetPriority(tun.PriDefault)
	checkContainers(t, s)
}

func checkContainers(t *testing.T, s *sched.Scheduler) {
	t.Helper()
	classes := make(map[kthread.Container][]uint64)
	g := irq.Acquire(s)
	s.Foreach(func(th *kthread.Thread) {
		c := th.Container()
		classes[c] = append(classes[c], th.ID)
		switch th.Status() {
		case kthread.StatusRunning, kthread.StatusDying:
			if c != kthread.ContainerNone {
				t.Errorf("thread %q status %v but in container %d", th.Name, th.Status(), c)
			}
		case kthread.StatusReady:
			// The idle thread is READY with no container; it is
			// runnable only as the empty-queue fallback.
			if c != kthread.ContainerReady && th.Name != "idle" {
				t.Errorf("READY thread %q in container %d", th.Name, c)
			}
		case kthread.StatusBlocked:
			if c != kthread.ContainerSleep && c != kthread.ContainerWait && th.Name != "idle" {
				t.Errorf("BLOCKED thread %q in container %d", th.Name, c)
			}
		}
	})
	g.Release()
	// No tid may appear in two container classes.
	for a, as := range classes {
		for b, bs := range classes {
			if a >= b || a == kthread.ContainerNone || b == kthread.ContainerNone {
				continue
			}
			inter := set.Uint64.FromSlice(as)
			set.Uint64.Intersection(inter, set.Uint64.FromSlice(bs))
			if len(inter) != 0 {
				t.Errorf("threads %v are in two containers at once", set.Uint64.ToSlice(inter))
			}
		}
	}
}

func TestStatsAccounting(t *testing.T) {
	s, ts := newTestKernel(t, config.Default())
	for i := 0; i < 5; i++ {
		ts.Step()
	}
	st := s.Stats()
	if st.TotalTicks != 5 {
		t.Fatalf("TotalTicks = %d, want 5", st.TotalTicks)
	}
	if st.KernelTicks != 5 {
		t.Fatalf("KernelTicks = %d, want 5 (main was running throughout)", st.KernelTicks)
	}
}

func TestSpawnInvalidPriorityPanics(t *testing.T) {
	s, _ := newTestKernel(t, config.Default())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range priority")
		}
	}()
	s.Spawn("bad", 64, func(interface{}) {}, nil)
}
