// Package sync provides the kernel's synchronization primitives: spinning and
// sleeping semaphores and the resource pools they hand out.
package sync

import (
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/sched"
	"plugos/kernel/task"
	"sync/atomic"
)

var (
	// ErrNotImplemented is returned by semaphore queries whose semantics
	// have not been designed yet.
	ErrNotImplemented = &kernel.Error{Module: "sync", Message: "not implemented"}

	errWaitOutsideTask = &kernel.Error{Module: "sync", Message: "semaphore wait outside of a task"}
	errWaitIRQDisabled = &kernel.Error{Module: "sync", Message: "semaphore wait with interrupts disabled"}
)

// SpinSemaphore counts the items of a resource pool. P busy-waits while the
// count is zero. It is deadlock free but not starvation free and must not be
// used where the producer may be held off indefinitely.
type SpinSemaphore[E any] struct {
	count atomic.Uint64
	pool  ResourcePool[E]
}

// NewSpinSemaphore returns a semaphore over pool with a zero count.
func NewSpinSemaphore[E any](pool ResourcePool[E]) *SpinSemaphore[E] {
	return &SpinSemaphore[E]{pool: pool}
}

// P waits until the count is positive, decrements it and takes one item from
// the pool. Interrupts are accepted while waiting.
func (s *SpinSemaphore[E]) P() (E, bool) {
	for {
		if c := s.count.Load(); c > 0 && s.count.CompareAndSwap(c, c-1) {
			return s.pool.Get()
		}
		cpu.Relax()
	}
}

// V inserts e into the pool and then increments the count. It never blocks.
// V returns false, leaving the count untouched, if the pool rejects e.
func (s *SpinSemaphore[E]) V(e E) bool {
	if !s.pool.Insert(e) {
		return false
	}
	s.count.Add(1)
	return true
}

// Count returns the current count.
func (s *SpinSemaphore[E]) Count() uint64 { return s.count.Load() }

// IsEmpty is not implemented yet.
func (s *SpinSemaphore[E]) IsEmpty() (bool, *kernel.Error) { return false, ErrNotImplemented }

// IsFull is not implemented yet.
func (s *SpinSemaphore[E]) IsFull() (bool, *kernel.Error) { return false, ErrNotImplemented }

// Semaphore is the sleeping variant: a task calling P on a zero count is
// parked in the semaphore's wait room and the CPU is handed to the next
// runnable task. V wakes the oldest waiter.
type Semaphore[E any] struct {
	count    atomic.Uint64
	pool     ResourcePool[E]
	waitRoom level.Cell[[]task.Handle]
}

// NewSemaphore returns a sleeping semaphore over pool with a zero count.
func NewSemaphore[E any](pool ResourcePool[E]) *Semaphore[E] {
	return &Semaphore[E]{pool: pool}
}

// P decrements the count and takes one item from the pool, blocking the
// current task while the count is zero. P must be called from a task with
// interrupts enabled and L2 free.
func (s *Semaphore[E]) P() (E, bool) {
	for {
		c := s.count.Load()
		if c == 0 {
			s.wait()
			continue
		}
		if s.count.CompareAndSwap(c, c-1) {
			return s.pool.Get()
		}
	}
}

// wait parks the current task in the wait room unless a V slipped in. L2 is
// claimed before the wait room is joined so that no epilogue can wake the
// task before it has left the CPU.
func (s *Semaphore[E]) wait() {
	level.AssertInterrupts(true, errWaitIRQDisabled)
	if _, ok := task.Current(); !ok {
		kfmt.Panic(errWaitOutsideTask)
	}

	level.EnterL2()
	tok := level.EnterL3()
	if s.count.Load() != 0 {
		tok.Leave()
		level.LeaveL2()
		return
	}

	me := task.CurrentTask()
	me.State = task.Wait
	room := s.waitRoom.Get(tok)
	*room = append(*room, me.Handle())
	tok.Leave()

	sched.DoSchedule()
	level.LeaveL2()
}

// V inserts e into the pool, increments the count and wakes the oldest
// waiter. It never blocks and may be called from any level. V returns false,
// leaving the count untouched, if the pool rejects e.
func (s *Semaphore[E]) V(e E) bool {
	if !s.pool.Insert(e) {
		return false
	}
	s.count.Add(1)

	tok := level.SaveL3()
	room := s.waitRoom.Get(tok)
	if len(*room) != 0 {
		h := (*room)[0]
		(*room)[0] = 0
		*room = (*room)[1:]
		sched.Wake(tok, h)
	}
	tok.Leave()
	return true
}

// WakeAll moves every waiter back to the run queue. Waiters that find the
// count still at zero go back to sleep.
func (s *Semaphore[E]) WakeAll() {
	tok := level.SaveL3()
	room := s.waitRoom.Get(tok)
	for _, h := range *room {
		sched.Wake(tok, h)
	}
	*room = (*room)[:0]
	tok.Leave()
}

// Waiters returns the number of tasks in the wait room.
func (s *Semaphore[E]) Waiters() int {
	tok := level.SaveL3()
	n := len(*s.waitRoom.Get(tok))
	tok.Leave()
	return n
}

// Count returns the current count.
func (s *Semaphore[E]) Count() uint64 { return s.count.Load() }

// IsEmpty is not implemented yet.
func (s *Semaphore[E]) IsEmpty() (bool, *kernel.Error) { return false, ErrNotImplemented }

// IsFull is not implemented yet.
func (s *Semaphore[E]) IsFull() (bool, *kernel.Error) { return false, ErrNotImplemented }
