package sched

import (
	"bytes"
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"plugos/kernel/mem"
	"plugos/kernel/mem/kstack"
	"plugos/kernel/task"
	"strings"
	"testing"
)

func TestRoundRobin(t *testing.T) {
	defer cpu.Reset()
	setup(t, 4)

	var trace []string
	spawn(t, func() {
		trace = append(trace, "A")
		Yield()
		trace = append(trace, "A")
		task.PowerOff()
	})
	for _, name := range []string{"B", "C"} {
		name := name
		spawn(t, func() {
			for {
				trace = append(trace, name)
				Yield()
			}
		})
	}

	cpu.EnableInterrupts()
	Kickoff()

	if got, exp := strings.Join(trace, ","), "A,B,C,A"; got != exp {
		t.Fatalf("expected execution order %s; got %s", exp, got)
	}
}

func TestFairness(t *testing.T) {
	defer cpu.Reset()

	specs := []struct {
		tasks  int
		rounds int
	}{
		{1, 3},
		{2, 4},
		{5, 3},
	}

	for specIndex, spec := range specs {
		setup(t, spec.tasks)

		var (
			trace []byte
			exp   []byte
		)
		for i := 0; i < spec.tasks; i++ {
			id := byte('0' + i)
			spawn(t, func() {
				for round := 0; ; round++ {
					trace = append(trace, id)
					if id == '0' && round == spec.rounds-1 {
						task.PowerOff()
					}
					Yield()
				}
			})
		}

		for round := 0; round < spec.rounds; round++ {
			for i := 0; i < spec.tasks; i++ {
				if round == spec.rounds-1 && i > 0 {
					break
				}
				exp = append(exp, byte('0'+i))
			}
		}

		cpu.EnableInterrupts()
		Kickoff()

		if !bytes.Equal(trace, exp) {
			t.Errorf("[spec %d] expected execution order %s; got %s", specIndex, exp, trace)
		}
	}
}

func TestYieldWithoutOtherTasks(t *testing.T) {
	defer cpu.Reset()
	setup(t, 1)

	var (
		yields   int
		queueLen = -1
	)
	spawn(t, func() {
		for i := 0; i < 3; i++ {
			Yield()
			yields++
		}
		queueLen = len(RunQueue())
		task.PowerOff()
	})

	cpu.EnableInterrupts()
	Kickoff()

	if yields != 3 {
		t.Fatalf("expected Yield to return immediately 3 times; got %d", yields)
	}
	if queueLen != 0 {
		t.Fatalf("expected the running task to stay out of the run queue; queue length %d", queueLen)
	}
}

func TestKickoffWithEmptyQueue(t *testing.T) {
	defer cpu.Reset()
	setup(t, 1)
	cpu.EnableInterrupts()

	expectHalt(t, errEmptyAtKickoff, Kickoff)
}

func TestDoScheduleErrors(t *testing.T) {
	defer cpu.Reset()

	t.Run("without L2", func(t *testing.T) {
		setup(t, 1)
		cpu.EnableInterrupts()
		expectHalt(t, errL2NotHeld, DoSchedule)
	})

	t.Run("waiting task and empty queue", func(t *testing.T) {
		setup(t, 1)
		h := spawnIdle(t)
		takeFromQueue(t)
		cpu.SetTaskRegister(uint32(h))
		h.Task().State = task.Wait

		cpu.EnableInterrupts()
		level.EnterL2()
		expectHalt(t, errNoRunnable, DoSchedule)
	})

	t.Run("queued task not runnable", func(t *testing.T) {
		setup(t, 2)
		me := spawnIdle(t)
		other := spawnIdle(t)
		takeFromQueue(t)
		cpu.SetTaskRegister(uint32(me))
		other.Task().State = task.Wait

		cpu.EnableInterrupts()
		level.EnterL2()
		expectHalt(t, errNextNotRunning, DoSchedule)
	})
}

func TestWake(t *testing.T) {
	defer cpu.Reset()
	setup(t, 2)

	h := spawnIdle(t)
	takeFromQueue(t)
	h.Task().State = task.Wait

	cpu.EnableInterrupts()
	tok := level.EnterL3()
	Wake(tok, h)
	// a second wake must not queue the task twice
	Wake(tok, h)
	tok.Leave()

	if h.Task().State != task.Run {
		t.Fatalf("expected woken task to be in state Run; got %s", h.Task().State)
	}
	if q := RunQueue(); len(q) != 1 || q[0] != h {
		t.Fatalf("expected run queue [%s]; got %v", h, q)
	}
}

func TestTryRemove(t *testing.T) {
	defer cpu.Reset()
	setup(t, 1)

	h := spawnIdle(t)
	if err := TryRemove(h); err != ErrNotImplemented {
		t.Fatalf("expected ErrNotImplemented; got %v", err)
	}
	if len(RunQueue()) != 1 {
		t.Fatal("expected TryRemove to leave the run queue untouched")
	}
}

func TestTryReschedule(t *testing.T) {
	defer cpu.Reset()

	t.Run("boot context keeps the request", func(t *testing.T) {
		setup(t, 1)
		cpu.EnableInterrupts()

		if SetNeedReschedule() {
			t.Fatal("expected reschedule flag to be initially clear")
		}
		TryReschedule()
		if !NeedReschedule() {
			t.Fatal("expected reschedule request to stay pending on the boot context")
		}
	})

	t.Run("task context consumes the request", func(t *testing.T) {
		setup(t, 1)
		h := spawnIdle(t)
		takeFromQueue(t)
		cpu.SetTaskRegister(uint32(h))
		cpu.EnableInterrupts()

		SetNeedReschedule()
		if !SetNeedReschedule() {
			t.Fatal("expected SetNeedReschedule to report the pending request")
		}

		TryReschedule()
		if NeedReschedule() {
			t.Fatal("expected TryReschedule to clear the request")
		}
		if !level.L2Available() {
			t.Fatal("expected L2 to be released after the reschedule")
		}
	})

	t.Run("interrupts disabled", func(t *testing.T) {
		setup(t, 1)
		expectHalt(t, errIRQDisabled, TryReschedule)
	})

	t.Run("L2 held", func(t *testing.T) {
		setup(t, 1)
		cpu.EnableInterrupts()
		level.EnterL2()
		expectHalt(t, errL2Held, TryReschedule)
	})
}

func setup(t *testing.T, capacity int) {
	t.Helper()

	cpu.Reset()
	level.Init()
	Init()

	pool, err := kstack.NewPool(16*mem.Kb, capacity)
	if err != nil {
		t.Fatal(err)
	}
	task.Init(pool, capacity)
}

func spawn(t *testing.T, entry func()) task.Handle {
	t.Helper()

	h, err := task.Create(entry)
	if err != nil {
		t.Fatal(err)
	}
	InsertTask(h)
	return h
}

// spawnIdle creates a task that is never switched to.
func spawnIdle(t *testing.T) task.Handle {
	return spawn(t, func() {})
}

// takeFromQueue pops the front of the run queue, emulating the switch to it.
func takeFromQueue(t *testing.T) task.Handle {
	t.Helper()

	h, ok := global.Unchecked().pop()
	if !ok {
		t.Fatal("expected a task in the run queue")
	}
	return h
}

// expectHalt runs fn and checks that it halts the CPU after reporting err.
func expectHalt(t *testing.T, err *kernel.Error, fn func()) {
	t.Helper()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	defer func() {
		t.Helper()
		if r := recover(); r != cpu.ErrHalted {
			t.Fatalf("expected the CPU to halt; recovered %v", r)
		}
		if !strings.Contains(buf.String(), err.Message) {
			t.Fatalf("expected panic output to mention %q; got:\n%s", err.Message, buf.String())
		}
	}()

	fn()
}
