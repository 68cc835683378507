// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"v.io/x/lib/cmdline"
	"v.io/x/lib/timing"

	"coresched.dev/kernel"
	"coresched.dev/kernel/config"
	"coresched.dev/kernel/kevents"
	"coresched.dev/kernel/klog"
	"coresched.dev/kernel/ksync"
)

// runPreempt: a CPU hog at PRI_DEFAULT-5 spins on a flag; the initial
// thread sleeps five ticks, then spawns an intruder at PRI_DEFAULT+5 that
// sets the flag. The hog must observe the flag and release its
// done-semaphore within 100 ticks of the intruder's spawn.
func runPreempt(env *cmdline.Env, tun config.Tunables, tick time.Duration) error {
	k := kernel.Boot(tun)
	k.StartTicker(tick)
	defer k.StopTicker()
	tm := timing.NewFullTimer("preempt")

	var flag int32
	done := ksync.NewSemaphore(k.Sched(), 0)

	tm.Push("hog-spins")
	k.Spawn("hog", tun.PriDefault-5, func(interface{}) {
		for atomic.LoadInt32(&flag) == 0 {
			k.Preempt()
		}
		done.Up()
	}, nil)
	k.Sleep(5)
	tm.Pop()

	tm.Push("intruder-preempts")
	start := k.Now()
	k.Spawn("intruder", tun.PriDefault+5, func(interface{}) {
		atomic.StoreInt32(&flag, 1)
	}, nil)
	done.Down()
	n := k.Now() - start
	tm.Pop()
	tm.Finish()

	klog.Preempted(int(n))
	fmt.Fprintf(env.Stdout, "High-priority thread preempted CPU hog after %d ticks.\n", n)
	if n > 100 {
		return fmt.Errorf("preemption took %d ticks, want <= 100", n)
	}
	return printIntervals(env, tm)
}

// runAging: a hog at PRI_DEFAULT runs while a thread spawned at
// PRI_DEFAULT-5 sits READY; aging must promote the waiter past the hog, and
// the priority it records on first run must have reached at least
// PRI_DEFAULT within 200 ticks.
func runAging(env *cmdline.Env, tun config.Tunables, tick time.Duration) error {
	k := kernel.Boot(tun)
	k.StartTicker(tick)
	defer k.StopTicker()

	var stop int32
	var recorded int32 = -1
	done := ksync.NewSemaphore(k.Sched(), 0)

	k.SetPriority(tun.PriDefault + 1)
	start := k.Now()
	k.Spawn("hog", tun.PriDefault, func(interface{}) {
		for atomic.LoadInt32(&stop) == 0 {
			k.Preempt()
		}
	}, nil)
	k.Spawn("ager", tun.PriDefault-5, func(interface{}) {
		atomic.StoreInt32(&recorded, k.GetPriority())
		atomic.StoreInt32(&stop, 1)
		done.Up()
	}, nil)
	k.SetPriority(tun.PriMin)
	done.Down()
	n := k.Now() - start

	got := atomic.LoadInt32(&recorded)
	fmt.Fprintf(env.Stdout, "aged thread first ran at priority %d after %d ticks\n", got, n)
	if got < tun.PriDefault {
		return fmt.Errorf("aged thread ran at priority %d, want >= %d", got, tun.PriDefault)
	}
	if n > 200 {
		return fmt.Errorf("aging took %d ticks, want <= 200", n)
	}
	return nil
}

// runMLFQS: with the multi-level feedback policy on, an interactive thread
// that sleeps one tick eight times must end at a higher priority than a
// CPU hog that never leaves the processor.
func runMLFQS(env *cmdline.Env, tun config.Tunables, tick time.Duration) error {
	tun.MLFQS = true
	k := kernel.Boot(tun)
	k.StartTicker(tick)
	defer k.StopTicker()

	var interactivePri, hogPri int32
	var interactiveDone int32
	done := ksync.NewSemaphore(k.Sched(), 0)

	deadline := k.Now() + 200
	k.Spawn("interactive", tun.PriDefault, func(interface{}) {
		for i := 0; i < 8; i++ {
			k.Sleep(1)
		}
		atomic.StoreInt32(&interactivePri, k.GetPriority())
		atomic.StoreInt32(&interactiveDone, 1)
	}, nil)
	k.Spawn("hog", tun.PriDefault, func(interface{}) {
		for atomic.LoadInt32(&interactiveDone) == 0 && k.Now() < deadline {
			k.Preempt()
		}
		atomic.StoreInt32(&hogPri, k.GetPriority())
		done.Up()
	}, nil)
	done.Down()

	i, h := atomic.LoadInt32(&interactivePri), atomic.LoadInt32(&hogPri)
	klog.MLFQSComparison(i, h)
	fmt.Fprintf(env.Stdout, "mlfq priority comparison: interactive=%d hog=%d\n", i, h)
	if atomic.LoadInt32(&interactiveDone) == 0 {
		return fmt.Errorf("interactive thread did not finish within 200 ticks")
	}
	if i <= h {
		return fmt.Errorf("interactive priority %d not above hog priority %d", i, h)
	}
	return nil
}

// runSemFair: five threads at priorities PRI_MIN..PRI_MIN+4 block on one
// semaphore; five releases must wake them in strictly decreasing priority
// order, observed through the thread lifecycle event stream.
func runSemFair(env *cmdline.Env, tun config.Tunables, tick time.Duration) error {
	k := kernel.Boot(tun)

	sem := ksync.NewSemaphore(k.Sched(), 0)
	done := ksync.NewSemaphore(k.Sched(), 0)
	events, cancel := k.Events().Subscribe()
	defer cancel()

	for i := int32(0); i < 5; i++ {
		k.Spawn(fmt.Sprintf("waiter-%d", i), tun.PriMin+i, func(interface{}) {
			sem.Down()
			done.Up()
		}, nil)
	}
	// Step aside so every waiter blocks, then take the CPU back.
	k.SetPriority(tun.PriMin)
	k.Yield()
	k.SetPriority(tun.PriDefault)
	drain(events)

	for i := 0; i < 5; i++ {
		sem.Up()
	}
	var order []int32
	for len(order) < 5 {
		e := <-events
		if e.Kind == kevents.Unblocked && e.ThreadName != "main" {
			order = append(order, e.Priority)
		}
	}
	for i := 0; i < 5; i++ {
		done.Down()
	}

	fmt.Fprintf(env.Stdout, "semaphore wake order by priority: %v\n", order)
	for i := 1; i < len(order); i++ {
		if order[i] >= order[i-1] {
			return fmt.Errorf("wake order %v is not strictly decreasing", order)
		}
	}
	return nil
}

// runCondvar: three threads of priorities 10, 40 and 25 wait on one
// condition; three signals wake 40, then 25, then 10.
func runCondvar(env *cmdline.Env, tun config.Tunables, tick time.Duration) error {
	k := kernel.Boot(tun)

	lock := ksync.NewLock(k.Sched())
	cond := ksync.NewCV(k.Sched())
	done := ksync.NewSemaphore(k.Sched(), 0)
	mu := ksync.NewLock(k.Sched())
	var order []int32

	for _, p := range []int32{10, 40, 25} {
		k.Spawn(fmt.Sprintf("waiter-%d", p), p, func(interface{}) {
			lock.Acquire()
			cond.Wait(lock)
			lock.Release()
			mu.Acquire()
			order = append(order, k.GetPriority())
			mu.Release()
			done.Up()
		}, nil)
	}
	k.SetPriority(tun.PriMin)
	k.Yield()
	k.SetPriority(tun.PriDefault)

	lock.Acquire()
	for i := 0; i < 3; i++ {
		cond.Signal(lock)
	}
	lock.Release()
	for i := 0; i < 3; i++ {
		done.Down()
	}

	fmt.Fprintf(env.Stdout, "condition wake order by priority: %v\n", order)
	want := []int32{40, 25, 10}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			return fmt.Errorf("wake order %v, want %v", order, want)
		}
	}
	return nil
}

// runFIFO: five threads of equal priority each yield once; the observed run
// order matches the creation order.
func runFIFO(env *cmdline.Env, tun config.Tunables, tick time.Duration) error {
	k := kernel.Boot(tun)

	mu := ksync.NewLock(k.Sched())
	var order []int
	done := ksync.NewSemaphore(k.Sched(), 0)

	for i := 0; i < 5; i++ {
		i := i
		k.Spawn(fmt.Sprintf("peer-%d", i), tun.PriDefault-1, func(interface{}) {
			mu.Acquire()
			order = append(order, i)
			mu.Release()
			k.Yield()
			done.Up()
		}, nil)
	}
	k.SetPriority(tun.PriMin)
	k.Yield()
	k.SetPriority(tun.PriDefault)
	for i := 0; i < 5; i++ {
		done.Down()
	}

	fmt.Fprintf(env.Stdout, "run order: %v\n", order)
	for i := range order {
		if order[i] != i {
			return fmt.Errorf("run order %v does not match creation order", order)
		}
	}
	return nil
}

// drain discards any buffered events.
func drain(ch <-chan kevents.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// printIntervals renders a scenario's interval tree.
func printIntervals(env *cmdline.Env, tm *timing.FullTimer) error {
	p := timing.IntervalPrinter{}
	return p.Print(env.Stdout, tm.Root())
}
