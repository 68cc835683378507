// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"testing"
)

func setenv(t *testing.T, name, value string) {
	t.Helper()
	if err := os.Setenv(name, value); err != nil {
		t.Fatal(err)
	}
}

func TestDefaults(t *testing.T) {
	d := Default()
	if d.PriMin != 0 || d.PriDefault != 31 || d.PriMax != 63 {
		t.Fatalf("priority range = [%d,%d,%d], want [0,31,63]", d.PriMin, d.PriDefault, d.PriMax)
	}
	if d.TimeSlice != 4 || d.AgingTicks != 4 {
		t.Fatalf("TimeSlice/AgingTicks = %d/%d, want 4/4", d.TimeSlice, d.AgingTicks)
	}
	if d.MLFQS {
		t.Fatal("MLFQS defaults to true, want false")
	}
}

func TestFromEnvOverride(t *testing.T) {
	setenv(t, "KERNEL_PRI_MAX", "127")
	setenv(t, "KERNEL_MLFQS", "true")
	defer os.Unsetenv("KERNEL_PRI_MAX")
	defer os.Unsetenv("KERNEL_MLFQS")
	got := Default().FromEnv()
	if got.PriMax != 127 {
		t.Fatalf("PriMax = %d, want 127", got.PriMax)
	}
	if !got.MLFQS {
		t.Fatal("MLFQS = false, want true")
	}
	if got.PriMin != 0 {
		t.Fatalf("PriMin = %d, want unchanged 0", got.PriMin)
	}
}

func TestFromEnvIgnoresInvalid(t *testing.T) {
	setenv(t, "KERNEL_PRI_MAX", "not-a-number")
	defer os.Unsetenv("KERNEL_PRI_MAX")
	got := Default().FromEnv()
	if got.PriMax != 63 {
		t.Fatalf("PriMax = %d, want unchanged 63 on invalid override", got.PriMax)
	}
}
