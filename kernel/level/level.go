// Package level implements the synchronization levels that protect the
// kernel's shared state:
//
//   - L1: the interrupt flag is clear; interrupt prologues run here and must
//     never block.
//   - L2: the epilogue level; interrupts are enabled but at most one epilogue
//     body executes at a time, system-wide. Blocking primitives and the
//     scheduler are entered from here.
//   - L3: a short kernel critical section with interrupts disabled, used to
//     mutate the run queue, wait rooms, the epilogue queue and the
//     bellringer list.
//
// None of these are locks. The discipline is static: each shared structure is
// wrapped in a Cell whose accessor requires an L3 Token and asserts that the
// interrupt flag is clear.
package level

import (
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"sync/atomic"
)

var (
	// l2Free is set while no epilogue (or scheduler entry) holds L2.
	l2Free atomic.Bool

	errL2Occupied = &kernel.Error{Module: "level", Message: "L2 entered while already occupied"}
	errL2NotHeld  = &kernel.Error{Module: "level", Message: "L2 left while not held"}
	errL3Nested   = &kernel.Error{Module: "level", Message: "L3 entered with interrupts disabled"}
	errL3NotHeld  = &kernel.Error{Module: "level", Message: "L3 object accessed with interrupts enabled"}
)

func init() {
	l2Free.Store(true)
}

// Init returns the levels to their boot configuration with L2 available.
func Init() {
	l2Free.Store(true)
}

// EnterL2 claims the epilogue level. Entering an occupied L2 is fatal.
func EnterL2() {
	if !l2Free.CompareAndSwap(true, false) && Checked {
		kfmt.Panic(errL2Occupied)
	}
}

// LeaveL2 releases the epilogue level. Leaving a free L2 is fatal.
func LeaveL2() {
	if !l2Free.CompareAndSwap(false, true) && Checked {
		kfmt.Panic(errL2NotHeld)
	}
}

// L2Available reports whether L2 is free.
func L2Available() bool {
	return l2Free.Load()
}

// IRQSave disables interrupts and returns whether they were enabled before
// the call. The result must be handed to IRQRestore.
func IRQSave() bool {
	if cpu.InterruptsEnabled() {
		cpu.DisableInterrupts()
		return true
	}
	return false
}

// IRQRestore re-enables interrupts if wasEnabled is true. It never disables
// them, so nested IRQSave/IRQRestore pairs unwind correctly.
func IRQRestore(wasEnabled bool) {
	if wasEnabled {
		cpu.EnableInterrupts()
	}
}

// AssertInterrupts halts the kernel if the interrupt flag does not match
// enabled. It compiles to nothing in release builds.
func AssertInterrupts(enabled bool, err *kernel.Error) {
	if Checked && cpu.InterruptsEnabled() != enabled {
		kfmt.Panic(err)
	}
}
