// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package klog is the scheduler core's logging surface, layered over vlog:
// the scenario trace lines the scheduling scenarios emit, plus the
// fatal-assertion path that precondition violations halt through.
package klog

import (
	"fmt"

	"v.io/x/lib/vlog"
)

// Info logs an informational scheduler trace line.
func Info(args ...interface{}) {
	vlog.Info(args...)
}

// Infof logs a formatted informational scheduler trace line.
func Infof(format string, args ...interface{}) {
	vlog.Infof(format, args...)
}

// Preempted logs how long a CPU hog held out against a higher-priority
// thread.
func Preempted(ticks int) {
	vlog.Infof("High-priority thread preempted CPU hog after %d ticks.", ticks)
}

// MLFQSComparison logs where an interactive thread and a CPU hog ended up
// under the feedback policy.
func MLFQSComparison(interactive, hog int32) {
	vlog.Infof("mlfq priority comparison: interactive=%d hog=%d", interactive, hog)
}

// Fatalf logs a diagnostic then panics. Precondition violations in the
// kernel core are programming errors, not recoverable results; they all
// halt through here. It never returns.
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	vlog.Errorf("%s", msg)
	panic(msg)
}
