// Package timer keeps the kernel's monotonic clock and the bellringer, the
// list of tasks sleeping until a deadline. The clock only moves when the
// periodic timer calls Tick; sleepers are woken by CheckAll from the timer
// epilogue.
package timer

import (
	"math"
	"plugos/kernel"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/sched"
	"plugos/kernel/task"
	"sync/atomic"
)

// DefaultIncrement is the tick length in nanoseconds of a PIT programmed for
// a 20ms period.
const DefaultIncrement uint64 = 19999708

// Sleeper is a task waiting for the clock to reach Until.
type Sleeper struct {
	Task task.Handle

	// Until is the absolute deadline in nanoseconds since boot.
	Until uint64
}

var (
	clock     atomic.Uint64
	increment atomic.Uint64

	bedroom level.Cell[[]Sleeper]

	errSleepOutsideTask = &kernel.Error{Module: "timer", Message: "nanosleep outside of a task"}
	errSleepIRQDisabled = &kernel.Error{Module: "timer", Message: "nanosleep with interrupts disabled"}
)

func init() {
	increment.Store(DefaultIncrement)
}

// Init rewinds the clock to zero, restores the default increment and empties
// the bellringer.
func Init() {
	clock.Store(0)
	increment.Store(DefaultIncrement)
	*bedroom.Unchecked() = nil
}

// Now returns the nanoseconds elapsed since boot.
func Now() uint64 {
	return clock.Load()
}

// Tick advances the clock by one increment and returns the new time. It is
// called from the timer prologue.
func Tick() uint64 {
	return clock.Add(increment.Load())
}

// SetIncrement sets the amount of nanoseconds each Tick adds to the clock.
func SetIncrement(ns uint64) {
	increment.Store(ns)
}

// Increment returns the current tick length in nanoseconds.
func Increment() uint64 {
	return increment.Load()
}

// CheckIn adds s to the bellringer. The caller is responsible for having put
// s.Task in the Wait state in the same critical section.
func CheckIn(s Sleeper) {
	tok := level.SaveL3()
	list := bedroom.Get(tok)
	*list = append(*list, s)
	tok.Leave()
}

// CheckAll wakes every sleeper whose deadline has passed. The list is
// scanned linearly and kept unsorted. CheckAll is meant to be called from the
// timer epilogue.
func CheckAll() {
	now := Now()

	tok := level.SaveL3()
	list := bedroom.Get(tok)
	kept := (*list)[:0]
	for _, s := range *list {
		if s.Until > now {
			kept = append(kept, s)
			continue
		}
		sched.Wake(tok, s.Task)
	}
	for i := len(kept); i < len(*list); i++ {
		(*list)[i] = Sleeper{}
	}
	*list = kept
	tok.Leave()
}

// Sleepers returns a snapshot of the bellringer list.
func Sleepers() []Sleeper {
	tok := level.SaveL3()
	list := *bedroom.Get(tok)
	out := append(make([]Sleeper, 0, len(list)), list...)
	tok.Leave()
	return out
}

// Nanosleep suspends the current task for at least ns nanoseconds. It must
// be called from a task with interrupts enabled and L2 free. Deadlines past
// the end of the clock are clamped to math.MaxUint64.
func Nanosleep(ns uint64) {
	level.AssertInterrupts(true, errSleepIRQDisabled)
	if _, ok := task.Current(); !ok {
		kfmt.Panic(errSleepOutsideTask)
	}

	level.EnterL2()
	tok := level.EnterL3()
	me := task.CurrentTask()
	me.State = task.Wait
	CheckIn(Sleeper{Task: me.Handle(), Until: clampedDeadline(Now(), ns)})
	tok.Leave()

	sched.DoSchedule()
	level.LeaveL2()
}

func clampedDeadline(now, ns uint64) uint64 {
	if ns > math.MaxUint64-now {
		return math.MaxUint64
	}
	return now + ns
}
