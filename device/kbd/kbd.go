// Package kbd drives the keyboard controller. The prologue fetches one byte
// from the controller into a small gather ring; the epilogue moves gathered
// keys into KeyBuffer, a sleeping semaphore that tasks read with ReadKey.
package kbd

import (
	"io"
	"plugos/device"
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/hal/cmdline"
	"plugos/kernel/kfmt"
	"plugos/kernel/level"
	ksync "plugos/kernel/sync"
)

const (
	// Vector is the interrupt vector of IRQ 1.
	Vector = 0x21

	dataPort   = 0x60
	statusPort = 0x64

	statusOutputFull = 1 << 0

	gatherSize    = 16
	keyBufferSize = 256
)

// KeyBuffer holds decoded keys until a task consumes them.
var KeyBuffer = ksync.NewSemaphore[byte](ksync.NewQueue[byte](keyBufferSize))

// ReadKey blocks the current task until a key is available and returns it.
func ReadKey() byte {
	k, _ := KeyBuffer.P()
	return k
}

type gatherRing struct {
	keys  [gatherSize]byte
	head  int
	count int
}

func (r *gatherRing) push(k byte) bool {
	if r.count == gatherSize {
		return false
	}
	r.keys[(r.head+r.count)%gatherSize] = k
	r.count++
	return true
}

func (r *gatherRing) pop() (byte, bool) {
	if r.count == 0 {
		return 0, false
	}
	k := r.keys[r.head]
	r.head = (r.head + 1) % gatherSize
	r.count--
	return k, true
}

// Driver is the keyboard controller driver.
type Driver struct {
	gather  level.Cell[gatherRing]
	dropped uint64
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "kbd"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit flushes any stale bytes from the controller's output buffer.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	flushed := 0
	for cpu.PortReadByte(statusPort)&statusOutputFull != 0 {
		cpu.PortReadByte(dataPort)
		flushed++
	}
	if flushed != 0 {
		kfmt.Fprintf(w, "flushed %d stale bytes, ", flushed)
	}
	return nil
}

// IRQVector returns the vector of the keyboard interrupt.
func (*Driver) IRQVector() uint8 {
	return Vector
}

// DoPrologue fetches one byte from the controller. Keys that arrive while
// the gather ring is full are dropped.
func (d *Driver) DoPrologue() {
	if cpu.PortReadByte(statusPort)&statusOutputFull == 0 {
		return
	}
	k := cpu.PortReadByte(dataPort)

	tok := level.SaveL3()
	if !d.gather.Get(tok).push(k) {
		d.dropped++
	}
	tok.Leave()
}

// DoEpilogue hands every gathered key to KeyBuffer. Keys that do not fit are
// dropped.
func (d *Driver) DoEpilogue() {
	for {
		tok := level.EnterL3()
		k, ok := d.gather.Get(tok).pop()
		tok.Leave()

		if !ok {
			return
		}
		if !KeyBuffer.V(k) {
			tok := level.EnterL3()
			d.dropped++
			tok.Leave()
		}
	}
}

// Dropped returns the number of keys lost to a full gather ring or a full
// key buffer.
func (d *Driver) Dropped() uint64 {
	tok := level.SaveL3()
	n := d.dropped
	tok.Leave()
	return n
}

func probeForKeyboard() device.Driver {
	if enabled, _ := cmdline.Bool("kbd", true); !enabled {
		return nil
	}

	// nothing drives the status port on a machine without a controller
	if cpu.PortReadByte(statusPort) == 0xff {
		return nil
	}
	return &Driver{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForKeyboard,
	})
}
