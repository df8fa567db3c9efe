// Package irq routes interrupt requests to their handlers. Every device
// vector is served by a Gate: the prologue runs immediately with interrupts
// disabled, the epilogue runs later at L2. Epilogues that arrive while L2 is
// occupied wait in the epilogue queue and are drained by whoever holds L2,
// with a reschedule point between each of them.
package irq

import (
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/sched"
)

type epilogueQueue struct {
	entries []func()
}

func (q *epilogueQueue) push(fn func()) {
	q.entries = append(q.entries, fn)
}

func (q *epilogueQueue) pop() (func(), bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	fn := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return fn, true
}

var (
	epilogues level.Cell[epilogueQueue]

	// tryRescheduleFn is mocked by tests.
	tryRescheduleFn = sched.TryReschedule

	errUnhandledVector    = &kernel.Error{Module: "irq", Message: "no gate registered for interrupt vector"}
	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled exception"}
)

// Init clears the gate registry, the exception table and the epilogue queue
// and installs Dispatch as the CPU trap entry.
func Init() {
	*gates.Unchecked() = [256]Gate{}
	*epilogues.Unchecked() = epilogueQueue{}
	exceptionHandlers = [FirstDeviceVector]ExceptionHandler{}

	cpu.SetTrapHandler(trap)
}

// Pending returns the number of epilogues waiting for L2.
func Pending() int {
	tok := level.SaveL3()
	n := len(epilogues.Get(tok).entries)
	tok.Leave()
	return n
}

func trap(vector uint8) {
	regs := Registers{Info: uint64(vector)}
	Dispatch(vector, &regs)
}

// Dispatch serves vector. It is entered with interrupts disabled and returns
// with interrupts disabled.
func Dispatch(vector uint8, regs *Registers) {
	if vector < FirstDeviceVector {
		dispatchException(ExceptionNum(vector), regs)
		return
	}

	tok := level.SaveL3()
	g := gates.Get(tok)[vector]
	if g.Prologue == nil {
		kfmt.Printf("\nno gate for vector %#x\n", vector)
		regs.DumpTo(kfmt.GetOutputSink())
		kfmt.Panic(errUnhandledVector)
	}

	g.Prologue()
	if g.Epilogue == nil {
		tok.Leave()
		return
	}

	if !level.L2Available() {
		// the current L2 holder drains the queue
		epilogues.Get(tok).push(g.Epilogue)
		tok.Leave()
		return
	}
	tok.Leave()

	level.EnterL2()
	cpu.EnableInterrupts()
	g.Epilogue()

	for {
		tok := level.EnterL3()
		q := epilogues.Get(tok)
		next, ok := q.pop()
		done := len(q.entries) == 0
		tok.Leave()

		if ok {
			next()
		}

		level.LeaveL2()
		tryRescheduleFn()
		level.EnterL2()

		if done {
			break
		}
	}

	cpu.DisableInterrupts()
	level.LeaveL2()
}

func dispatchException(num ExceptionNum, regs *Registers) {
	if handler := exceptionHandlers[num]; handler != nil {
		handler(regs)
		return
	}

	kfmt.Printf("\nunhandled exception %d\n", num)
	regs.DumpTo(kfmt.GetOutputSink())
	kfmt.Panic(errUnhandledException)
}
