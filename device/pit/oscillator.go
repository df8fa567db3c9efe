package pit

import (
	"context"
	"plugos/kernel/cpu"
	"sync"
	"time"
)

// Oscillator emulates channel 0 of the PIT on the host. It decodes the
// divider written by Interval and, while Run is active, raises the timer
// interrupt once per programmed period of wall-clock time.
type Oscillator struct {
	mu         sync.Mutex
	mode       uint8
	divider    uint32
	low        uint8
	expectHigh bool

	reprogrammed chan struct{}
}

// NewOscillator returns an unprogrammed oscillator.
func NewOscillator() *Oscillator {
	return &Oscillator{reprogrammed: make(chan struct{}, 1)}
}

// Attach connects the oscillator to the PIT ports.
func (o *Oscillator) Attach() {
	cpu.AttachPortDevice(o, ctrlPort, dataPort)
}

// Detach disconnects the oscillator from the PIT ports.
func (o *Oscillator) Detach() {
	cpu.AttachPortDevice(nil, ctrlPort, dataPort)
}

// In services a read from one of the PIT ports. Counter latching is not
// emulated.
func (o *Oscillator) In(port uint16) uint8 {
	return 0
}

// Out services a write to one of the PIT ports.
func (o *Oscillator) Out(port uint16, val uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch port {
	case ctrlPort:
		o.mode = val
		o.expectHigh = false
	case dataPort:
		if !o.expectHigh {
			o.low = val
			o.expectHigh = true
			return
		}

		o.divider = uint32(val)<<8 | uint32(o.low)
		if o.divider == 0 {
			// a zero reload value counts 65536 cycles
			o.divider = 65536
		}
		o.expectHigh = false

		select {
		case o.reprogrammed <- struct{}{}:
		default:
		}
	}
}

// Mode returns the last control word written to the oscillator.
func (o *Oscillator) Mode() uint8 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Period returns the programmed period or zero if the divider has not been
// written yet.
func (o *Oscillator) Period() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return time.Duration(o.divider) * BaseNs
}

// Run raises the timer interrupt every period until ctx is done. Ticks only
// start once the divider has been programmed.
func (o *Oscillator) Run(ctx context.Context) error {
	var (
		ticker *time.Ticker
		tickCh <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	if o.Period() != 0 {
		ticker = time.NewTicker(o.Period())
		tickCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.reprogrammed:
			if ticker != nil {
				ticker.Stop()
			}
			ticker = time.NewTicker(o.Period())
			tickCh = ticker.C
		case <-tickCh:
			cpu.RaiseIRQ(Vector)
		}
	}
}
