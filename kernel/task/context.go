package task

import (
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/mem"
)

var errTaskReturned = &kernel.Error{Module: "task", Message: "task entry point returned"}

// Context is the register state preserved across Switch. Only the
// callee-saved registers and the stack pointer are kept; caller-saved
// registers are already on the stack when a switch happens.
//
// On the host each kernel stack is backed by a goroutine that is parked on
// resume while the task is switched out.
type Context struct {
	RBX uint64
	RBP uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
	RSP uint64

	entry   func()
	started bool
	resume  chan struct{}
}

// prepare sets up the context for the first switch into entry: RSP points
// just below the 8-byte aligned top of the stack, leaving room for the entry
// address and a zero return address.
func (c *Context) prepare(stackBase uintptr, stackSize mem.Size, entry func()) {
	top := uint64(stackBase) + uint64(stackSize) - 1
	top &^= 7
	c.RSP = top - 16
	c.entry = entry
	c.resume = make(chan struct{}, 1)
}

// Switch saves the context of the running task from and resumes to. It
// returns once another task switches back to from. Switch must be called
// with L2 held by the caller; the resumed side releases it.
func Switch(from, to *Task) {
	resume(to)
	<-from.Context.resume
}

// SwitchTo resumes to without saving any context. It is used exactly once,
// to leave the boot context, and returns only after PowerOff. If a task halts
// the CPU instead, the halt is raised again on the boot context.
func SwitchTo(to *Task) {
	boot := arena.boot
	resume(to)
	if err := <-boot; err != nil {
		panic(err)
	}
}

// PowerOff stops the machine from within a task: the current task is parked
// forever and the boot context blocked in SwitchTo resumes.
func PowerOff() {
	me := CurrentTask()
	boot := arena.boot

	cpu.DisableInterrupts()
	cpu.SetTaskRegister(0)
	boot <- nil
	<-me.Context.resume
}

func resume(to *Task) {
	cpu.SetTaskRegister(uint32(to.self))
	if !to.Context.started {
		to.Context.started = true
		go trampoline(to)
		return
	}
	to.Context.resume <- struct{}{}
}

// trampoline is the first code a new task runs. The switch into a fresh task
// always happens with L2 held, so the task releases it before calling entry.
func trampoline(t *Task) {
	boot := arena.boot
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if r != cpu.ErrHalted {
			panic(r)
		}

		// hand the halt over to the boot context; this stack is dead
		cpu.DisableInterrupts()
		cpu.SetTaskRegister(0)
		boot <- cpu.ErrHalted
	}()

	level.LeaveL2()
	t.Context.entry()

	// Tasks are never reaped.
	kfmt.Panic(errTaskReturned)
}
