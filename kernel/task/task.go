// Package task defines the kernel's execution contexts. Every task owns a
// kernel stack obtained from a StackAllocator and a slot in a fixed-capacity
// arena; a Handle is the slot index and is the only way other kernel code
// refers to a task. The handle of the running task is kept in the CPU task
// register so that Current never needs to inspect the stack pointer.
package task

import (
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/mem"
	"strconv"
)

// Magic marks a slot that holds a valid Task.
const Magic uint64 = 0x7461736b5f4d4147

// DefaultCapacity is the arena size used when Init is passed a non-positive
// capacity.
const DefaultCapacity = 64

// State describes the scheduling state of a task.
type State uint8

const (
	// Run marks a task that is either running or ready to run. The two
	// are not distinguished: the running task is conceptually also ready.
	Run State = iota

	// Wait marks a task blocked in exactly one wait room (a semaphore or
	// the bellringer).
	Wait

	// Block and Dead are reserved for future use.
	Block
	Dead
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case Run:
		return "Run"
	case Wait:
		return "Wait"
	case Block:
		return "Block"
	case Dead:
		return "Dead"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// StackAllocator is the memory manager interface for kernel stacks.
type StackAllocator interface {
	// AllocateStack returns the base (lowest) address of a free stack.
	AllocateStack() (uintptr, *kernel.Error)

	// FreeStack returns a stack to the allocator.
	FreeStack(addr uintptr) *kernel.Error

	// StackSize returns the size of the stacks handed out.
	StackSize() mem.Size
}

// Task is an execution context.
type Task struct {
	// Magic must equal the Magic constant for the task to be valid.
	Magic uint64

	// ID is a numeric identifier assigned at creation.
	ID uint32

	// StackBase is the lowest address of the task's kernel stack.
	StackBase uintptr

	// State is only modified inside L3 critical sections.
	State State

	// Context holds the registers saved by Switch.
	Context Context

	self Handle
}

// Handle returns the handle that names and locates t.
func (t *Task) Handle() Handle {
	return t.self
}

// Handle identifies and locates a task. The zero Handle names no task.
type Handle uint32

// Valid returns true if h refers to an arena slot that holds a valid task.
func (h Handle) Valid() bool {
	if h == 0 || int(h) > len(arena.slots) {
		return false
	}
	t := arena.slots[h-1]
	return t != nil && t.Magic == Magic
}

// Task resolves h. Resolving a handle whose slot does not hold a valid task
// is fatal.
func (h Handle) Task() *Task {
	if !h.Valid() {
		kfmt.Panic(errBadHandle)
	}
	return arena.slots[h-1]
}

// String implements fmt.Stringer for Handle.
func (h Handle) String() string {
	return "task#" + strconv.Itoa(int(h))
}

var (
	errBadHandle     = &kernel.Error{Module: "task", Message: "handle does not refer to a valid task"}
	errArenaFull     = &kernel.Error{Module: "task", Message: "task arena is full"}
	errNoAllocator   = &kernel.Error{Module: "task", Message: "no stack allocator configured"}
	errNoCurrentTask = &kernel.Error{Module: "task", Message: "no task is running on this CPU"}
	errNilEntry      = &kernel.Error{Module: "task", Message: "task entry point is nil"}
)

type taskArena struct {
	slots  []*Task
	stacks StackAllocator
	nextID uint32
	boot   chan *kernel.Error
}

var arena taskArena

// Init resets the arena to capacity empty slots backed by stacks. Tasks that
// existed before the call are forgotten; their stacks are not returned to the
// previous allocator.
func Init(stacks StackAllocator, capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	arena = taskArena{
		slots:  make([]*Task, capacity),
		stacks: stacks,
		nextID: 1,
		boot:   make(chan *kernel.Error, 1),
	}
}

// Create allocates a kernel stack, places a new task in a free arena slot and
// primes its context so that the first switch to it runs entry. The new task
// is in the Run state but is not queued anywhere; the caller inserts it into
// the scheduler.
func Create(entry func()) (Handle, *kernel.Error) {
	if entry == nil {
		return 0, errNilEntry
	}
	if arena.stacks == nil {
		return 0, errNoAllocator
	}

	tok := level.SaveL3()
	defer tok.Leave()

	slot := -1
	for i, t := range arena.slots {
		if t == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, errArenaFull
	}

	stack, err := arena.stacks.AllocateStack()
	if err != nil {
		return 0, err
	}

	t := &Task{
		Magic:     Magic,
		ID:        arena.nextID,
		StackBase: stack,
		State:     Run,
		self:      Handle(slot + 1),
	}
	t.Context.prepare(stack, arena.stacks.StackSize(), entry)

	arena.slots[slot] = t
	arena.nextID++
	return t.self, nil
}

// Current returns the handle of the task that owns the CPU. It returns false
// when the CPU runs on the boot context or the task register does not name a
// valid task.
func Current() (Handle, bool) {
	h := Handle(cpu.TaskRegister())
	if !h.Valid() {
		return 0, false
	}
	return h, true
}

// CurrentTask returns the task that owns the CPU. Calling it from the boot
// context is fatal.
func CurrentTask() *Task {
	h, ok := Current()
	if !ok {
		kfmt.Panic(errNoCurrentTask)
	}
	return arena.slots[h-1]
}

// Count returns the number of tasks in the arena.
func Count() int {
	n := 0
	for _, t := range arena.slots {
		if t != nil {
			n++
		}
	}
	return n
}
