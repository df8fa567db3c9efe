package device

import (
	"io"
	"plugos/kernel"
	"plugos/kernel/irq"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprint.
	DriverInit(io.Writer) *kernel.Error
}

// InterruptSource is implemented by drivers whose device raises an interrupt
// line. Once the driver is initialized the hal installs the gate built from
// its prologue (and epilogue, if it also implements irq.EpilogueHandler) at
// IRQVector.
type InterruptSource interface {
	Driver
	irq.Handler

	// IRQVector returns the vector the device interrupts on.
	IRQVector() uint8
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

// The order in which the hal probes drivers. Interrupt controllers and
// anything the timer depends on are probed first; input devices are probed
// last so that their interrupts cannot arrive before the timer is set up.
const (
	DetectOrderEarly DetectOrder = -128 + iota
	DetectOrderBeforeTimer
	DetectOrderTimer
	DetectOrderLast = 127
)

// DriverInfo is a driver-specific function for probing the system for a
// particular device.
type DriverInfo struct {
	// Order specifies at which stage of the hal's detection process the
	// probe function is invoked.
	Order DetectOrder

	// Probe returns a driver for the device if the device is present.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	// registeredDrivers tracks the drivers registered via a call to
	// RegisterDriver.
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info to the list of drivers probed
// by the hal. Drivers register themselves from their package's init().
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
