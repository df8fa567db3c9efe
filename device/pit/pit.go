// Package pit drives channel 0 of the 8253/8254 programmable interval timer.
// The timer interrupt is the kernel's heartbeat: its prologue advances the
// clock and its epilogue wakes expired sleepers and requests a reschedule.
package pit

import (
	"io"
	"plugos/device"
	"plugos/kernel"
	"plugos/kernel/cpu"
	"plugos/kernel/hal/cmdline"
	"plugos/kernel/kfmt"
	"plugos/kernel/sched"
	"plugos/kernel/timer"
)

const (
	// Vector is the interrupt vector of IRQ 0.
	Vector = 0x20

	// BaseFrequency is the input clock of the PIT in Hz.
	BaseFrequency = 1193182

	// BaseNs is the approximate length of one input clock cycle.
	BaseNs = 838

	// DefaultIntervalUs programs a 20ms (50Hz) tick.
	DefaultIntervalUs = 20000

	ctrlPort = 0x43
	dataPort = 0x40

	// channel 0, lobyte/hibyte access, mode 2 (rate generator)
	cmdRateGenerator = 0x34

	maxDivider = 65535
)

var errZeroDivider = &kernel.Error{Module: "pit", Message: "interval too short for a non-zero divider"}

// Interval programs channel 0 to fire every us microseconds and returns the
// effective period in nanoseconds. The divider is rounded to the nearest
// input clock and clamped to 65535 (about 54.9ms). An interval that rounds to
// a zero divider is fatal.
func Interval(us uint64) uint64 {
	divider := (us*1000 + BaseNs/2) / BaseNs
	if divider == 0 {
		kfmt.Panic(errZeroDivider)
	}
	if divider > maxDivider {
		divider = maxDivider
	}

	cpu.PortWriteByte(ctrlPort, cmdRateGenerator)
	cpu.PortWriteByte(dataPort, uint8(divider&0xff))
	cpu.PortWriteByte(dataPort, uint8(divider>>8))

	return divider * BaseNs
}

// Driver is the PIT device driver.
type Driver struct {
	intervalUs uint64
	period     uint64
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "pit"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit programs the timer and sets the clock increment to the
// effective period.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	d.period = Interval(d.intervalUs)
	timer.SetIncrement(d.period)
	kfmt.Fprintf(w, "period %dns, ", d.period)
	return nil
}

// Period returns the effective timer period in nanoseconds.
func (d *Driver) Period() uint64 {
	return d.period
}

// IRQVector returns the vector of the timer interrupt.
func (*Driver) IRQVector() uint8 {
	return Vector
}

// DoPrologue advances the kernel clock by one tick.
func (*Driver) DoPrologue() {
	timer.Tick()
}

// DoEpilogue wakes expired sleepers and asks for a reschedule at the next
// linearization point.
func (*Driver) DoEpilogue() {
	timer.CheckAll()
	sched.SetNeedReschedule()
}

func probeForPIT() device.Driver {
	us, err := cmdline.Uint("tick_us", DefaultIntervalUs)
	if err != nil {
		kfmt.Printf("[pit] bad tick_us, using %dus\n", DefaultIntervalUs)
	}
	return &Driver{intervalUs: us}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderTimer,
		Probe: probeForPIT,
	})
}
