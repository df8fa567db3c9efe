package irq

import (
	"plugos/kernel"
	"plugos/kernel/level"
)

// FirstDeviceVector is the lowest vector routed to a device gate. Vectors
// below it are CPU exceptions.
const FirstDeviceVector = 0x20

// Gate pairs the two halves of an interrupt handler. The prologue runs at L1
// with interrupts disabled; it must be short and must never block. The
// optional epilogue runs at L2 with interrupts enabled, serialized against
// every other epilogue in the system.
type Gate struct {
	Prologue func()

	// Epilogue is nil for prologue-only handlers.
	Epilogue func()
}

// Handler is implemented by drivers that service an interrupt line.
type Handler interface {
	// DoPrologue acknowledges the device. It runs with interrupts
	// disabled.
	DoPrologue()
}

// EpilogueHandler is implemented by drivers that defer part of their work
// to L2.
type EpilogueHandler interface {
	Handler

	// DoEpilogue may block only through semaphores or Nanosleep.
	DoEpilogue()
}

// GateFor builds the gate for h. If h also implements EpilogueHandler the gate
// carries an epilogue.
func GateFor(h Handler) Gate {
	g := Gate{Prologue: h.DoPrologue}
	if eh, ok := h.(EpilogueHandler); ok {
		g.Epilogue = eh.DoEpilogue
	}
	return g
}

var (
	gates level.Cell[[256]Gate]

	exceptionHandlers [FirstDeviceVector]ExceptionHandler

	errReservedVector = &kernel.Error{Module: "irq", Message: "vector is reserved for CPU exceptions"}
	errNoPrologue     = &kernel.Error{Module: "irq", Message: "gate has no prologue"}
)

// RegisterGate installs g for vector, replacing any previous gate.
func RegisterGate(vector uint8, g Gate) *kernel.Error {
	if vector < FirstDeviceVector {
		return errReservedVector
	}
	if g.Prologue == nil {
		return errNoPrologue
	}

	tok := level.SaveL3()
	gates.Get(tok)[vector] = g
	tok.Leave()
	return nil
}

// GateAt returns the gate registered for vector.
func GateAt(vector uint8) (Gate, bool) {
	tok := level.SaveL3()
	g := gates.Get(tok)[vector]
	tok.Leave()
	return g, g.Prologue != nil
}

// HandleException installs handler for the given exception.
func HandleException(num ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[num] = handler
}
