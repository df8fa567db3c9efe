// Package kmain contains the kernel entry point.
package kmain

import (
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/hal"
	"plugos/kernel/hal/cmdline"
	"plugos/kernel/irq"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/mem/kstack"
	"plugos/kernel/sched"
	"plugos/kernel/task"
	"plugos/kernel/timer"
	"sync/atomic"

	// drivers register themselves with the hal
	_ "plugos/device/kbd"
	_ "plugos/device/pit"
)

var (
	shutdownRequested atomic.Bool

	errNoWork = &kernel.Error{Module: "kmain", Message: "no tasks to run"}
)

// Kmain boots the kernel with the given command line and runs tasks until one
// of them calls Shutdown or the host calls RequestShutdown. Every task runs
// in a context of its own; an idle task is added that halts the CPU whenever
// nothing else is runnable.
//
// The boot order is fixed: tasks are queued first, then drivers are probed
// and their gates installed, then interrupts are enabled and the first task is
// kicked off.
func Kmain(cmdLine string, tasks ...func()) {
	cpu.Reset()
	shutdownRequested.Store(false)

	if err := cmdline.Set(cmdLine); err != nil {
		kfmt.Panic(err)
	}
	if prefix := cmdline.String("log_prefix", ""); prefix != "" {
		kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: kfmt.GetOutputSink(), Prefix: []byte(prefix)})
	}

	if len(tasks) == 0 {
		kfmt.Panic(errNoWork)
	}

	stackSize, err := cmdline.Size("stack_size", kstack.MinStackSize)
	if err != nil {
		kfmt.Panic(err)
	}
	maxTasks, err := cmdline.Uint("max_tasks", task.DefaultCapacity)
	if err != nil {
		kfmt.Panic(err)
	}

	stacks, err := kstack.NewPool(stackSize, int(maxTasks))
	if err != nil {
		kfmt.Panic(err)
	}

	level.Init()
	task.Init(stacks, int(maxTasks))
	sched.Init()
	irq.Init()
	timer.Init()

	for _, entry := range append(tasks, idle) {
		h, err := task.Create(entry)
		if err != nil {
			kfmt.Panic(err)
		}
		sched.InsertTask(h)
	}
	kfmt.Printf("[kmain] %d tasks, %s stacks\n", task.Count(), stackSize)

	hal.DetectHardware()

	cpu.EnableInterrupts()
	sched.Kickoff()

	kfmt.Printf("[kmain] powered off at %dns\n", timer.Now())
}

// Shutdown powers the machine off. It must be called from a task and does
// not return.
func Shutdown() {
	task.PowerOff()
}

// RequestShutdown asks the idle task to power the machine off the next time
// it runs. It is safe to call from any goroutine.
func RequestShutdown() {
	shutdownRequested.Store(true)
}

// idle runs whenever no other task is runnable. The CPU is halted until the
// next interrupt, after which idle gives up the CPU again.
func idle() {
	for {
		if shutdownRequested.Load() {
			Shutdown()
		}

		if len(sched.RunQueue()) == 0 {
			cpu.Idle()
		}
		sched.Yield()
	}
}
