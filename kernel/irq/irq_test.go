package irq

import (
	"bytes"
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	"strings"
	"testing"
)

type prologueOnly struct{ calls int }

func (d *prologueOnly) DoPrologue() { d.calls++ }

type twoHalves struct{ prologues, epilogues int }

func (d *twoHalves) DoPrologue() { d.prologues++ }
func (d *twoHalves) DoEpilogue() { d.epilogues++ }

func TestGateFor(t *testing.T) {
	var p prologueOnly
	g := GateFor(&p)
	if g.Prologue == nil || g.Epilogue != nil {
		t.Fatal("expected a prologue-only gate")
	}
	g.Prologue()
	if p.calls != 1 {
		t.Fatalf("expected gate prologue to call the driver; got %d calls", p.calls)
	}

	var d twoHalves
	g = GateFor(&d)
	if g.Prologue == nil || g.Epilogue == nil {
		t.Fatal("expected a gate with both halves")
	}
	g.Epilogue()
	if d.epilogues != 1 {
		t.Fatalf("expected gate epilogue to call the driver; got %d calls", d.epilogues)
	}
}

func TestRegisterGate(t *testing.T) {
	defer cpu.Reset()
	reset()

	specs := []struct {
		vector uint8
		gate   Gate
		expErr *kernel.Error
	}{
		{0x0e, Gate{Prologue: func() {}}, errReservedVector},
		{FirstDeviceVector - 1, Gate{Prologue: func() {}}, errReservedVector},
		{FirstDeviceVector, Gate{Epilogue: func() {}}, errNoPrologue},
		{FirstDeviceVector, Gate{Prologue: func() {}}, nil},
		{0xff, Gate{Prologue: func() {}, Epilogue: func() {}}, nil},
	}

	for specIndex, spec := range specs {
		if err := RegisterGate(spec.vector, spec.gate); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}

		_, found := GateAt(spec.vector)
		if exp := spec.expErr == nil; found != exp {
			t.Errorf("[spec %d] expected GateAt to report %t; got %t", specIndex, exp, found)
		}
	}
}

func TestDispatchPrologueOnly(t *testing.T) {
	defer cpu.Reset()
	reset()

	var d prologueOnly
	RegisterGate(0x20, GateFor(&d))

	Dispatch(0x20, &Registers{})

	if d.calls != 1 {
		t.Fatalf("expected prologue to run once; got %d", d.calls)
	}
	if cpu.InterruptsEnabled() {
		t.Fatal("expected interrupts to stay disabled")
	}
	if !level.L2Available() {
		t.Fatal("expected prologue-only dispatch to leave L2 untouched")
	}
}

func TestDispatchEpilogue(t *testing.T) {
	defer cpu.Reset()
	reset()
	reschedules := mockReschedule(t)

	var (
		irqOnInEpilogue  bool
		l2HeldInEpilogue bool
	)
	RegisterGate(0x21, Gate{
		Prologue: func() {},
		Epilogue: func() {
			irqOnInEpilogue = cpu.InterruptsEnabled()
			l2HeldInEpilogue = !level.L2Available()
		},
	})

	Dispatch(0x21, &Registers{})

	if !irqOnInEpilogue {
		t.Error("expected the epilogue to run with interrupts enabled")
	}
	if !l2HeldInEpilogue {
		t.Error("expected the epilogue to run at L2")
	}
	if cpu.InterruptsEnabled() {
		t.Error("expected Dispatch to return with interrupts disabled")
	}
	if !level.L2Available() {
		t.Error("expected Dispatch to release L2")
	}
	if *reschedules != 1 {
		t.Errorf("expected one reschedule point; got %d", *reschedules)
	}
}

func TestDispatchWhileL2Held(t *testing.T) {
	defer cpu.Reset()
	reset()

	var d twoHalves
	RegisterGate(0x22, GateFor(&d))

	level.EnterL2()
	Dispatch(0x22, &Registers{})
	Dispatch(0x22, &Registers{})

	if d.prologues != 2 || d.epilogues != 0 {
		t.Fatalf("expected 2 prologues and no epilogues; got %d and %d", d.prologues, d.epilogues)
	}
	if got := Pending(); got != 2 {
		t.Fatalf("expected 2 queued epilogues; got %d", got)
	}
}

func TestEpilogueMutualExclusion(t *testing.T) {
	defer cpu.Reset()
	reset()
	reschedules := mockReschedule(t)

	var (
		trace   []string
		running int
	)
	enter := func(name string) {
		running++
		if running > 1 {
			trace = append(trace, "overlap")
		}
		trace = append(trace, name)
	}

	RegisterGate(0x20, Gate{
		Prologue: func() { trace = append(trace, "timer:prologue") },
		Epilogue: func() {
			enter("timer:epilogue")
			// a nested interrupt arrives while the epilogue runs
			cpu.RaiseIRQ(0x21)
			cpu.RaiseIRQ(0x22)
			cpu.Relax()
			trace = append(trace, "timer:done")
			running--
		},
	})
	RegisterGate(0x21, Gate{
		Prologue: func() { trace = append(trace, "kbd:prologue") },
		Epilogue: func() { enter("kbd:epilogue"); running-- },
	})
	RegisterGate(0x22, Gate{
		Prologue: func() { trace = append(trace, "nic:prologue") },
	})

	cpu.RaiseIRQ(0x20)
	cpu.EnableInterrupts()

	exp := []string{
		"timer:prologue",
		"timer:epilogue",
		"kbd:prologue",
		"nic:prologue",
		"timer:done",
		"kbd:epilogue",
	}
	if got := strings.Join(trace, ","); got != strings.Join(exp, ",") {
		t.Fatalf("expected trace:\n%v\ngot:\n%v", exp, trace)
	}
	if Pending() != 0 {
		t.Fatal("expected the epilogue queue to be drained")
	}
	if *reschedules != 1 {
		t.Fatalf("expected one reschedule point per drained epilogue; got %d", *reschedules)
	}
	if !cpu.InterruptsEnabled() || !level.L2Available() {
		t.Fatal("expected interrupts enabled and L2 free after the interrupt returns")
	}
}

func TestDispatchUnregisteredVector(t *testing.T) {
	defer cpu.Reset()
	reset()

	out := expectHalt(t, errUnhandledVector, func() {
		Dispatch(0x30, &Registers{Info: 0x30, RIP: 0xbadf00d})
	})

	if !strings.Contains(out, "vector 0x30") || !strings.Contains(out, "000000000badf00d") {
		t.Fatalf("expected the vector and a register dump in the output; got:\n%s", out)
	}
}

func TestDispatchException(t *testing.T) {
	defer cpu.Reset()

	t.Run("handled", func(t *testing.T) {
		reset()

		var got *Registers
		HandleException(PageFaultException, func(regs *Registers) {
			got = regs
			regs.RIP += 2
		})

		regs := &Registers{Info: 0xdead, RIP: 0x1000}
		Dispatch(uint8(PageFaultException), regs)

		if got != regs {
			t.Fatal("expected the exception handler to receive the saved registers")
		}
		if regs.RIP != 0x1002 {
			t.Fatalf("expected handler modifications to propagate; RIP = %#x", regs.RIP)
		}
	})

	t.Run("unhandled", func(t *testing.T) {
		reset()

		out := expectHalt(t, errUnhandledException, func() {
			Dispatch(uint8(GPFException), &Registers{})
		})
		if !strings.Contains(out, "unhandled exception 13") {
			t.Fatalf("expected the exception number in the output; got:\n%s", out)
		}
	})
}

func TestRegistersDumpTo(t *testing.T) {
	regs := Registers{
		RAX:    1,
		RBX:    2,
		RCX:    3,
		RDX:    4,
		RSI:    5,
		RDI:    6,
		RBP:    7,
		R8:     8,
		R9:     9,
		R10:    10,
		R11:    11,
		R12:    12,
		R13:    13,
		R14:    14,
		R15:    15,
		RIP:    16,
		CS:     17,
		RFlags: 18,
		RSP:    19,
		SS:     20,
	}

	exp := "RAX = 0000000000000001 RBX = 0000000000000002\nRCX = 0000000000000003 RDX = 0000000000000004\nRSI = 0000000000000005 RDI = 0000000000000006\nRBP = 0000000000000007\nR8  = 0000000000000008 R9  = 0000000000000009\nR10 = 000000000000000a R11 = 000000000000000b\nR12 = 000000000000000c R13 = 000000000000000d\nR14 = 000000000000000e R15 = 000000000000000f\n\nRIP = 0000000000000010 CS  = 0000000000000011\nRSP = 0000000000000013 SS  = 0000000000000014\nRFL = 0000000000000012\n"

	var buf bytes.Buffer
	regs.DumpTo(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func reset() {
	cpu.Reset()
	level.Init()
	Init()
}

// mockReschedule replaces the scheduler hook with a counter.
func mockReschedule(t *testing.T) *int {
	var calls int
	orig := tryRescheduleFn
	tryRescheduleFn = func() { calls++ }
	t.Cleanup(func() { tryRescheduleFn = orig })
	return &calls
}

// expectHalt runs fn, checks that it halts the CPU after reporting err and
// returns the console output.
func expectHalt(t *testing.T, err *kernel.Error, fn func()) (out string) {
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
		out = buf.String()
	}()

	fn()
	return ""
}
