// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kthread

// A gate is a binary semaphore: it can have values 0 and 1. It is the
// rendezvous primitive the context switch is built on: each thread's
// goroutine parks on its own gate and is resumed by signalling it.
type gate struct {
	ch chan struct{}
}

// init initializes the gate; the initial value is 0.
func (g *gate) init() {
	g.ch = make(chan struct{}, 1)
}

// p waits until the gate's count is 1 and decrements it to 0.
func (g *gate) p() {
	<-g.ch
}

// v ensures that the gate's count is 1.
func (g *gate) v() {
	select {
	case g.ch <- struct{}{}:
	default: // already signaled; don't block.
	}
}
