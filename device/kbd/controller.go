package kbd

import (
	"plugos/kernel/cpu"
	"sync"
)

// Controller emulates the keyboard controller on the host. Bytes handed to
// Feed are queued in the controller's output FIFO and announced with the
// keyboard interrupt; the interrupt is raised again after every read that
// leaves bytes behind.
type Controller struct {
	mu   sync.Mutex
	fifo []byte
}

// NewController returns a controller with an empty output FIFO.
func NewController() *Controller {
	return &Controller{}
}

// Attach connects the controller to the keyboard ports.
func (c *Controller) Attach() {
	cpu.AttachPortDevice(c, dataPort, statusPort)
}

// Detach disconnects the controller; the keyboard ports float again.
func (c *Controller) Detach() {
	cpu.AttachPortDevice(nil, dataPort, statusPort)
}

// Feed queues keys for the kernel. It is safe to call from any goroutine.
func (c *Controller) Feed(keys ...byte) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	c.fifo = append(c.fifo, keys...)
	c.mu.Unlock()

	cpu.RaiseIRQ(Vector)
}

// Buffered returns the number of bytes waiting in the output FIFO.
func (c *Controller) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fifo)
}

// In services a read from the data or status port.
func (c *Controller) In(port uint16) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch port {
	case statusPort:
		if len(c.fifo) != 0 {
			return statusOutputFull
		}
		return 0
	case dataPort:
		if len(c.fifo) == 0 {
			return 0
		}
		k := c.fifo[0]
		c.fifo = c.fifo[1:]
		if len(c.fifo) != 0 {
			cpu.RaiseIRQ(Vector)
		}
		return k
	}
	return 0xff
}

// Out services a write to the data or status port. Controller commands are
// accepted and ignored.
func (c *Controller) Out(port uint16, val uint8) {}
