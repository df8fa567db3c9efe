// Package hal probes for the devices the kernel knows about, initializes
// their drivers and connects interrupt-driven drivers to the gate registry.
package hal

import (
	"bytes"
	"plugos/device"
	"plugos/kernel/irq"
	"plugos/kernel/kfmt"
	"sort"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// ActiveDrivers returns the drivers that were successfully initialized.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers. It must run with interrupts disabled: a gate only becomes
// reachable once its driver is fully initialized.
func DetectHardware() {
	devices = managedDevices{}

	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		if !onDriverInit(&w, drv) {
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. Interrupt sources get their gate installed.
func onDriverInit(w *kfmt.PrefixWriter, drv device.Driver) bool {
	src, ok := drv.(device.InterruptSource)
	if !ok {
		return true
	}

	gate := irq.GateFor(src)
	if err := irq.RegisterGate(src.IRQVector(), gate); err != nil {
		kfmt.Fprintf(w, "gate install failed: %s\n", err.Message)
		return false
	}

	if gate.Epilogue != nil {
		kfmt.Fprintf(w, "vector %#x with epilogue, ", src.IRQVector())
	} else {
		kfmt.Fprintf(w, "vector %#x, ", src.IRQVector())
	}
	return true
}
