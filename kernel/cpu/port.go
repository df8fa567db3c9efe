package cpu

import "sync"

// PortDevice is implemented by simulated hardware that decodes accesses to
// one or more I/O ports.
type PortDevice interface {
	// In services a read from port.
	In(port uint16) uint8

	// Out services a write of val to port.
	Out(port uint16, val uint8)
}

// floatingBus is the value read from a port with no device attached.
const floatingBus = 0xff

var (
	portMu  sync.RWMutex
	portMap = map[uint16]PortDevice{}
)

// AttachPortDevice connects dev to the listed ports, replacing any device that
// was previously attached to them. Passing a nil dev detaches the ports.
func AttachPortDevice(dev PortDevice, ports ...uint16) {
	portMu.Lock()
	defer portMu.Unlock()

	for _, port := range ports {
		if dev == nil {
			delete(portMap, port)
			continue
		}
		portMap[port] = dev
	}
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8) {
	if dev := portDevice(port); dev != nil {
		dev.Out(port, val)
	}
}

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8 {
	if dev := portDevice(port); dev != nil {
		return dev.In(port)
	}
	return floatingBus
}

func portDevice(port uint16) PortDevice {
	portMu.RLock()
	defer portMu.RUnlock()
	return portMap[port]
}
