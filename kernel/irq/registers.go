package irq

import (
	"io"
	"plugos/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception or
// interrupt occurs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info contains the exception code for exceptions or the vector
	// number for device interrupts.
	Info uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %016x RBX = %016x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %016x RDX = %016x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %016x RDI = %016x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %016x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %016x R9  = %016x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %016x R11 = %016x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %016x R13 = %016x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %016x R15 = %016x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %016x CS  = %016x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %016x SS  = %016x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %016x\n", r.RFlags)
}

// ExceptionNum describes an x86 exception or trap slot. Vectors below
// FirstDeviceVector are reserved for exceptions.
type ExceptionNum uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = ExceptionNum(0)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = ExceptionNum(2)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = ExceptionNum(6)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = ExceptionNum(8)

	// GPFException occurs when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = ExceptionNum(14)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = ExceptionNum(18)
)

// ExceptionHandler handles a CPU exception. If the handler returns, any
// modifications to regs are propagated back to the interrupted context.
type ExceptionHandler func(regs *Registers)
