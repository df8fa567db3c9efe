package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"plugos/device/kbd"
	"plugos/device/pit"
	"plugos/kernel"
	"plugos/kernel/kmain"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// bootFn is mocked by tests.
var bootFn = kmain.Kmain

// run powers the machine on and blocks until it is off. The kernel, the PIT
// oscillator and the keyboard feed each run in a goroutine of their own;
// once the kernel powers off the other two are stopped.
func run(ctx context.Context, m *Machine, log *logrus.Entry, keys io.Reader) error {
	d, ok := demos[m.Demo]
	if !ok {
		return fmt.Errorf("unknown demo %q", m.Demo)
	}

	osc := pit.NewOscillator()
	osc.Attach()
	defer osc.Detach()

	var ctl *kbd.Controller
	if m.Keyboard {
		ctl = kbd.NewController()
		ctl.Attach()
		defer ctl.Detach()
	}

	g, gctx := errgroup.WithContext(ctx)
	hostCtx, stopHost := context.WithCancel(gctx)
	defer stopHost()

	// The first task to run signals that drivers are initialized; keys fed
	// before that would be flushed as stale by the keyboard driver.
	tasks := d.tasks()
	ready := make(chan struct{})
	first := tasks[0]
	tasks[0] = func() {
		close(ready)
		first()
	}

	poweredOff := make(chan struct{})
	g.Go(func() error {
		defer close(poweredOff)
		defer stopHost()

		log.WithField("cmdline", m.CmdLine).Info("machine powered on")
		if err := boot(m.CmdLine, tasks); err != nil {
			return err
		}
		log.Info("machine powered off")
		return nil
	})

	g.Go(func() error {
		return osc.Run(hostCtx)
	})

	if ctl != nil {
		g.Go(func() error {
			select {
			case <-ready:
			case <-hostCtx.Done():
				return nil
			}
			return feedKeys(hostCtx, keys, ctl)
		})
	}

	g.Go(func() error {
		var deadline <-chan time.Time
		if m.Duration > 0 {
			timer := time.NewTimer(m.Duration)
			defer timer.Stop()
			deadline = timer.C
		}

		select {
		case <-poweredOff:
		case <-deadline:
			log.WithField("after", m.Duration).Info("run time is up, requesting shutdown")
			kmain.RequestShutdown()
		case <-gctx.Done():
			log.Info("interrupted, requesting shutdown")
			kmain.RequestShutdown()
		}
		return nil
	})

	return g.Wait()
}

// boot runs the kernel on the calling goroutine and turns a halt during boot
// into an error.
func boot(cmdLine string, tasks []func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			kerr, ok := r.(*kernel.Error)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("kernel halted: %w", kerr)
		}
	}()

	bootFn(cmdLine, tasks...)
	return nil
}

// feedKeys copies bytes from r into the keyboard controller until ctx is
// done or r is exhausted. Reads happen on a separate goroutine since a
// blocked read cannot be interrupted.
func feedKeys(ctx context.Context, r io.Reader, ctl *kbd.Controller) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk := <-chunks:
			ctl.Feed(chunk...)
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading keys: %w", err)
		}
	}
}
