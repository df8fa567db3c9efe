// Package cpu models the single processor that the kernel runs on. The model
// covers the state that the scheduling core depends on: the interrupt enable
// flag, the interrupt request lines, the trap entry point, the task register
// and the I/O port bus.
//
// Interrupts are only ever taken at instruction boundaries where the flag is
// sampled: EnableInterrupts, Relax and Idle. Lines can be raised from any
// goroutine (the simulated devices run on their own goroutines) but the trap
// handler always runs on the goroutine that currently owns the CPU.
package cpu

import (
	"math/bits"
	"plugos/kernel"
	"sync/atomic"
)

// TrapHandler is invoked with interrupts disabled whenever the CPU accepts a
// pending interrupt request.
type TrapHandler func(vector uint8)

var (
	// ErrHalted is the value passed to panic() by Halt. The host has no way
	// to stop the clock of a goroutine so a halted CPU unwinds instead.
	ErrHalted = &kernel.Error{Module: "cpu", Message: "system halted"}

	intFlag atomic.Bool

	// pendingLines is a 256-bit bitmap of raised interrupt request lines.
	pendingLines [4]atomic.Uint64

	// wakeCh receives a token whenever a line is raised so that Idle can
	// block instead of spinning.
	wakeCh = make(chan struct{}, 1)

	trapFn TrapHandler

	// taskRegister holds the handle of the task that owns the CPU. A zero
	// value means that the CPU runs on the boot context.
	taskRegister atomic.Uint32
)

// Reset returns the CPU to its power-on state: interrupts disabled, no raised
// lines, no trap handler and an empty task register.
func Reset() {
	intFlag.Store(false)
	for i := range pendingLines {
		pendingLines[i].Store(0)
	}
	select {
	case <-wakeCh:
	default:
	}
	trapFn = nil
	taskRegister.Store(0)
}

// SetTrapHandler installs the function that receives accepted interrupts.
func SetTrapHandler(fn TrapHandler) {
	trapFn = fn
}

// EnableInterrupts sets the interrupt flag. Any lines raised while the flag
// was clear are delivered before EnableInterrupts returns.
func EnableInterrupts() {
	intFlag.Store(true)
	deliver()
}

// DisableInterrupts clears the interrupt flag.
func DisableInterrupts() {
	intFlag.Store(false)
}

// InterruptsEnabled reports whether the interrupt flag is set.
func InterruptsEnabled() bool {
	return intFlag.Load()
}

// RaiseIRQ asserts the request line for vector. It is safe to call from any
// goroutine. Raising a line that is already pending has no effect.
func RaiseIRQ(vector uint8) {
	pendingLines[vector>>6].Or(1 << (vector & 63))
	select {
	case wakeCh <- struct{}{}:
	default:
	}
}

// IRQPending reports whether vector has been raised and not yet accepted.
func IRQPending(vector uint8) bool {
	return pendingLines[vector>>6].Load()&(1<<(vector&63)) != 0
}

// Relax opens an interrupt window, the equivalent of the PAUSE instruction
// inside a spin loop. Pending lines are delivered if interrupts are enabled.
func Relax() {
	deliver()
}

// Idle stops instruction execution until an interrupt request arrives and
// then delivers it. Idle must be called with interrupts enabled; otherwise it
// never returns, just like HLT with a clear interrupt flag.
func Idle() {
	for !anyPending() {
		<-wakeCh
	}
	deliver()
}

// Halt stops instruction execution for good.
func Halt() {
	intFlag.Store(false)
	panic(ErrHalted)
}

// SetTaskRegister loads the task register.
func SetTaskRegister(v uint32) {
	taskRegister.Store(v)
}

// TaskRegister returns the contents of the task register.
func TaskRegister() uint32 {
	return taskRegister.Load()
}

// deliver accepts pending lines, lowest vector first, for as long as the
// interrupt flag is set. The flag is cleared while the trap handler runs and
// set again when it returns, mirroring the interrupt gate and IRETQ.
func deliver() {
	for intFlag.Load() && trapFn != nil {
		vector, ok := takePending()
		if !ok {
			return
		}

		intFlag.Store(false)
		trapFn(vector)
		intFlag.Store(true)
	}
}

func anyPending() bool {
	for i := range pendingLines {
		if pendingLines[i].Load() != 0 {
			return true
		}
	}
	return false
}

// takePending atomically claims the lowest raised line.
func takePending() (uint8, bool) {
	for word := range pendingLines {
		for {
			raised := pendingLines[word].Load()
			if raised == 0 {
				break
			}

			lowest := bits.TrailingZeros64(raised)
			if pendingLines[word].CompareAndSwap(raised, raised&^(1<<lowest)) {
				return uint8(word<<6 + lowest), true
			}
		}
	}
	return 0, false
}
