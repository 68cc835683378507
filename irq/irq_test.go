// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irq

import "testing"

func TestRoundTrip(t *testing.T) {
	var c Counter
	g1 := Acquire(&c)
	g2 := Acquire(&c)
	if c.level != 2 {
		t.Fatalf("level = %d, want 2", c.level)
	}
	g2.Release()
	if c.level != 1 {
		t.Fatalf("level after inner release = %d, want 1", c.level)
	}
	g1.Release()
	if c.level != 0 {
		t.Fatalf("level after outer release = %d, want 0", c.level)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	var c Counter
	g := Acquire(&c)
	g.Release()
	g.Release()
	if c.level != 0 {
		t.Fatalf("level = %d, want 0", c.level)
	}
}

func TestInterruptFlag(t *testing.T) {
	var c Counter
	if c.InInterrupt() {
		t.Fatal("InInterrupt true before EnterInterrupt")
	}
	c.EnterInterrupt()
	if !c.InInterrupt() {
		t.Fatal("InInterrupt false after EnterInterrupt")
	}
	c.YieldOnReturn()
	if yield := c.LeaveInterrupt(); !yield {
		t.Fatal("LeaveInterrupt did not report the pending yield")
	}
	if c.InInterrupt() {
		t.Fatal("InInterrupt true after LeaveInterrupt")
	}
	if yield := c.LeaveInterrupt(); yield {
		t.Fatal("LeaveInterrupt reported a stale yield request")
	}
}
