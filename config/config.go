// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the scheduler's tunables — priority range, default
// priority, time slice, aging period — and the mechanism for overriding
// them from the environment or from command-line flags in cmd/kernelsim.
package config

import (
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// Tunables are the core scheduler's constants. The zero value is not valid;
// use Default to get the kernel's standard values.
type Tunables struct {
	PriMin     int32
	PriDefault int32
	PriMax     int32
	TimeSlice  uint32
	AgingTicks uint32
	MLFQS      bool
}

// Default returns the kernel's standard values: priorities 0..63 with a
// default of 31, a 4-tick time slice, a 4-tick aging period, MLFQS off.
func Default() Tunables {
	return Tunables{
		PriMin:     0,
		PriDefault: 31,
		PriMax:     63,
		TimeSlice:  4,
		AgingTicks: 4,
		MLFQS:      false,
	}
}

// FromEnv overrides t's fields from KERNEL_PRI_MIN, KERNEL_PRI_DEFAULT,
// KERNEL_PRI_MAX, KERNEL_TIME_SLICE, KERNEL_AGING_TICKS, and KERNEL_MLFQS
// when those environment variables are set, returning the result. Invalid
// values are ignored, leaving the previous field untouched.
func (t Tunables) FromEnv() Tunables {
	if v, ok := envInt32("KERNEL_PRI_MIN"); ok {
		t.PriMin = v
	}
	if v, ok := envInt32("KERNEL_PRI_DEFAULT"); ok {
		t.PriDefault = v
	}
	if v, ok := envInt32("KERNEL_PRI_MAX"); ok {
		t.PriMax = v
	}
	if v, ok := envUint32("KERNEL_TIME_SLICE"); ok {
		t.TimeSlice = v
	}
	if v, ok := envUint32("KERNEL_AGING_TICKS"); ok {
		t.AgingTicks = v
	}
	if v, ok := os.LookupEnv("KERNEL_MLFQS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			t.MLFQS = b
		}
	}
	return t
}

func envInt32(name string) (int32, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func envUint32(name string) (uint32, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// RegisterFlags registers pflag overrides for t onto fs, for use by
// cmd/kernelsim. MLFQS mode is the one switch expected to be set often in
// practice; the rest exist mainly so scenario scripts can shrink the
// tunables for faster runs.
func (t *Tunables) RegisterFlags(fs *pflag.FlagSet) {
	fs.Int32Var(&t.PriMin, "pri-min", t.PriMin, "minimum thread priority")
	fs.Int32Var(&t.PriDefault, "pri-default", t.PriDefault, "default thread priority")
	fs.Int32Var(&t.PriMax, "pri-max", t.PriMax, "maximum thread priority")
	fs.Uint32Var(&t.TimeSlice, "time-slice", t.TimeSlice, "ticks per scheduling quantum")
	fs.Uint32Var(&t.AgingTicks, "aging-ticks", t.AgingTicks, "ticks between aging promotions")
	fs.BoolVar(&t.MLFQS, "mlfqs", t.MLFQS, "enable simplified MLFQS mode")
}
