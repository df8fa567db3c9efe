// Package sched implements the round-robin scheduler. The run queue is a FIFO
// of task handles that is only ever touched at L3. The running task is not
// kept in the queue while it runs: DoSchedule appends it to the back when it
// gives up the CPU and pops the next task from the front.
package sched

import (
	"plugos/kernel"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/task"
	"sync/atomic"
)

// minRunQueueCap is reserved up front so that inserting into the run queue
// does not normally allocate inside a critical section.
const minRunQueueCap = 16

type scheduler struct {
	runQueue []task.Handle
}

func (s *scheduler) push(h task.Handle) {
	s.runQueue = append(s.runQueue, h)
}

func (s *scheduler) pop() (task.Handle, bool) {
	if len(s.runQueue) == 0 {
		return 0, false
	}
	h := s.runQueue[0]
	s.runQueue[0] = 0
	s.runQueue = s.runQueue[1:]
	return h, true
}

var (
	global level.Cell[scheduler]

	// needReschedule is set by the timer epilogue and consumed at the
	// next linearization point.
	needReschedule atomic.Bool

	// ErrNotImplemented is returned by operations whose semantics have not
	// been designed yet.
	ErrNotImplemented = &kernel.Error{Module: "sched", Message: "not implemented"}

	errEmptyAtKickoff = &kernel.Error{Module: "sched", Message: "run queue empty, can't start"}
	errNoRunnable     = &kernel.Error{Module: "sched", Message: "run queue empty and current task is not runnable"}
	errNextNotRunning = &kernel.Error{Module: "sched", Message: "run queue holds a task that is not runnable"}
	errL2NotHeld      = &kernel.Error{Module: "sched", Message: "schedule called without holding L2"}
	errL2Held         = &kernel.Error{Module: "sched", Message: "reschedule point reached while L2 is held"}
	errIRQDisabled    = &kernel.Error{Module: "sched", Message: "reschedule point reached with interrupts disabled"}
)

// Init empties the run queue and clears the reschedule flag. It must be
// called before any task is inserted.
func Init() {
	*global.Unchecked() = scheduler{runQueue: make([]task.Handle, 0, minRunQueueCap)}
	needReschedule.Store(false)
}

// InsertTask appends h to the back of the run queue. The task must be in the
// Run state. Duplicates are not detected.
func InsertTask(h task.Handle) {
	tok := level.SaveL3()
	global.Get(tok).push(h)
	tok.Leave()
}

// TryRemove would remove every occurrence of h from the run queue. Task
// removal has not been designed yet.
func TryRemove(h task.Handle) *kernel.Error {
	return ErrNotImplemented
}

// Wake moves a waiting task back to the run queue. It must be called at L3
// by the waker that just removed h from its wait room. Waking a task that is
// not waiting has no effect.
func Wake(tok level.Token, h task.Handle) {
	t := h.Task()
	if t.State != task.Wait {
		return
	}
	t.State = task.Run
	global.Get(tok).push(h)
}

// RunQueue returns a snapshot of the run queue, front first.
func RunQueue() []task.Handle {
	tok := level.SaveL3()
	defer tok.Leave()

	q := global.Get(tok).runQueue
	return append(make([]task.Handle, 0, len(q)), q...)
}

// SetNeedReschedule requests a reschedule at the next linearization point
// and returns the previous value of the request flag.
func SetNeedReschedule() bool {
	return needReschedule.Swap(true)
}

// NeedReschedule reports whether a reschedule has been requested.
func NeedReschedule() bool {
	return needReschedule.Load()
}

// TryReschedule is the linearization point between epilogues. It must be
// called with interrupts enabled and L2 free. If a reschedule was requested
// the flag is cleared and the current task yields. On the boot context there
// is no task to switch away from, so the request stays pending.
func TryReschedule() {
	level.AssertInterrupts(true, errIRQDisabled)
	if level.Checked && !level.L2Available() {
		kfmt.Panic(errL2Held)
	}

	if _, ok := task.Current(); !ok {
		return
	}

	if !needReschedule.CompareAndSwap(true, false) {
		return
	}
	Yield()
}

// Yield gives up the CPU to the next runnable task. It claims L2, so it must
// not be called from an epilogue.
func Yield() {
	level.EnterL2()
	DoSchedule()
	level.LeaveL2()
}

// DoSchedule performs one round-robin step: the front of the run queue is
// switched in and, if the caller is still runnable, the caller goes to the
// back. The caller must hold L2 and have interrupts enabled.
func DoSchedule() {
	if level.Checked && level.L2Available() {
		kfmt.Panic(errL2NotHeld)
	}

	me := task.CurrentTask()

	tok := level.EnterL3()
	s := global.Get(tok)
	if len(s.runQueue) == 0 && me.State == task.Run {
		// nobody else to run
		tok.Leave()
		return
	}

	next, ok := s.pop()
	if !ok {
		kfmt.Panic(errNoRunnable)
	}

	nextTask := next.Task()
	if nextTask.State != task.Run {
		kfmt.Panic(errNextNotRunning)
	}

	if me.State == task.Run {
		s.push(me.Handle())
	}
	tok.Leave()

	if nextTask == me {
		return
	}
	task.Switch(me, nextTask)
}

// Kickoff starts the first task in the run queue. It is called exactly once
// from the boot context, after interrupts have been enabled, and claims L2 on
// behalf of the task it starts; the task releases it on its first
// instruction. Kickoff only returns once the machine is powered off.
func Kickoff() {
	tok := level.EnterL3()
	first, ok := global.Get(tok).pop()
	if !ok {
		kfmt.Panic(errEmptyAtKickoff)
	}

	// Claim L2 before interrupts come back on so that an epilogue raised
	// in between is queued rather than run on the boot context.
	level.EnterL2()
	tok.Leave()

	task.SwitchTo(first.Task())
}
