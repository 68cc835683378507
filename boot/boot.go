// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package boot brings the scheduler up: Init adopts the calling execution
// context as the initial thread, and Start spawns the idle thread and turns
// the system multitasking.
package boot

import (
	"coresched.dev/kernel/config"
	"coresched.dev/kernel/irq"
	"coresched.dev/kernel/kevents"
	"coresched.dev/kernel/ksync"
	"coresched.dev/kernel/sched"
)

// Init constructs a Scheduler against the given collaborators and registers
// the caller as thread "main" at the default priority in status RUNNING.
// It must run before the tick source delivers any tick.
func Init(tun config.Tunables, sw sched.Switcher, pages sched.PageAllocator, events *kevents.Publisher) *sched.Scheduler {
	s := sched.New(tun, sw, pages, events)
	s.AdoptMain("main")
	return s
}

// Start spawns the idle thread and waits until it has run once, signalled
// through a private semaphore. When Start returns the system is
// multitasking: the ready queues can run dry safely, with the idle thread
// soaking up the CPU until the next thread becomes runnable.
func Start(s *sched.Scheduler) {
	started := ksync.NewSemaphore(s, 0)
	if _, err := s.Spawn("idle", s.Tunables().PriMin, func(aux interface{}) {
		idleLoop(s, aux.(*ksync.Semaphore))
	}, started); err != nil {
		panic("boot: cannot spawn idle thread: " + err.Error())
	}
	started.Down()
}

// idleLoop is the idle thread: on first run it installs itself as the
// scheduler's fallback and signals Start; thereafter it blocks itself,
// letting the scheduler pick any READY thread, and — when it remains the
// only runnable thread — halts with interrupts enabled until the next timer
// tick.
func idleLoop(s *sched.Scheduler, started *ksync.Semaphore) {
	g := irq.Acquire(s)
	s.SetIdle(s.Running())
	g.Release()
	started.Up()
	for {
		g := irq.Acquire(s)
		s.Block()
		g.Release()
		s.AwaitTick()
	}
}
