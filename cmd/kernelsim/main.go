// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command kernelsim boots the thread scheduler against the in-process
// platform collaborators and runs the canonical scheduling scenarios:
// timer-driven preemption, aging, the simplified multi-level feedback
// policy, and the priority-ordered synchronization primitives.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"v.io/x/lib/cmdline"

	"coresched.dev/kernel/config"
)

var flagTick time.Duration

func main() {
	cmdline.Main(cmdRoot)
}

var cmdRoot = &cmdline.Command{
	Name:  "kernelsim",
	Short: "Run kernel scheduler scenarios",
	Long: `
Command kernelsim boots the thread scheduler and runs scheduling scenarios
against it. Each scenario spawns a handful of kernel threads, drives the
timer, and reports what the scheduler did.

Tunables (priority range, time slice, aging period, MLFQS mode) come from
KERNEL_* environment variables, overridden by per-scenario flags given after
"--", e.g.:

   kernelsim preempt -- --time-slice 8
`,
	Children: []*cmdline.Command{
		cmdPreempt,
		cmdAging,
		cmdMLFQS,
		cmdSemFair,
		cmdCondvar,
		cmdFIFO,
	},
}

var cmdPreempt = newScenarioCommand(
	"preempt",
	"High-priority thread preempts a CPU hog",
	"A low-priority hog spins on a flag; after a short sleep the initial thread spawns a high-priority intruder that sets the flag. The hog must observe it promptly.",
	runPreempt,
)

var cmdAging = newScenarioCommand(
	"aging",
	"A starved READY thread is promoted until it runs",
	"A hog at the default priority runs while a lower-priority thread sits READY; aging must promote the waiter past the hog within a bounded number of ticks.",
	runAging,
)

var cmdMLFQS = newScenarioCommand(
	"mlfqs",
	"Simplified MLFQS favors I/O-bound over CPU-bound threads",
	"With the multi-level feedback policy enabled, a thread that sleeps every tick must end up above a thread that never leaves the CPU.",
	runMLFQS,
)

var cmdSemFair = newScenarioCommand(
	"semfair",
	"Semaphore releases wake waiters in priority order",
	"Five threads of distinct priorities block on one semaphore; five releases must wake them highest-priority first.",
	runSemFair,
)

var cmdCondvar = newScenarioCommand(
	"condvar",
	"Condition signals wake waiters in priority order",
	"Three threads of priorities 10, 40 and 25 wait on one condition; three signals must wake 40, then 25, then 10.",
	runCondvar,
)

var cmdFIFO = newScenarioCommand(
	"fifo",
	"Equal-priority threads run in spawn order",
	"Five threads of equal priority all yield immediately; the observed run order must match the creation order.",
	runFIFO,
)

// newScenarioCommand wraps a scenario body in the shared plumbing: tunable
// parsing, kernel boot, and the tick flag.
func newScenarioCommand(name, short, long string, run func(*cmdline.Env, config.Tunables, time.Duration) error) *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     name,
		Short:    short,
		Long:     long + "\n\nTunable overrides may be given after \"--\".",
		ArgsName: "[-- tunable-flags]",
		ArgsLong: "Flags parsed against the scheduler tunables, e.g. --time-slice 8.",
		Runner: cmdline.RunnerFunc(func(env *cmdline.Env, args []string) error {
			tun, err := parseTunables(name, args)
			if err != nil {
				return err
			}
			return run(env, tun, flagTick)
		}),
	}
	cmd.Flags.DurationVar(&flagTick, "tick", time.Millisecond, "timer tick period")
	return cmd
}

// parseTunables layers the override chain: defaults, then environment, then
// any flags the user supplied after "--".
func parseTunables(scenario string, args []string) (config.Tunables, error) {
	tun := config.Default().FromEnv()
	fs := pflag.NewFlagSet(scenario, pflag.ContinueOnError)
	tun.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return tun, fmt.Errorf("bad tunable override: %v", err)
	}
	return tun, nil
}
