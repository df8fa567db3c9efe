// Command plugos runs the kernel on a simulated machine hosted by the current
// process. The machine is described by a YAML file:
//
//	cmdline: "tick_us=10000 rounds=16"
//	demo: pingpong
//	duration: 3s
//	keyboard: false
//
// Command line flags override the values read from the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"plugos/kernel/kfmt"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := runMain(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "plugos: %v\n", err)
		os.Exit(1)
	}
}

func runMain(args []string) error {
	fs := flag.NewFlagSet("plugos", flag.ContinueOnError)
	var (
		machinePath = fs.String("machine", "", "YAML machine file")
		cmdLine     = fs.String("cmdline", "", "kernel command line")
		demoName    = fs.String("demo", "", "workload to run")
		duration    = fs.Duration("duration", 0, "power the machine off after this long (0 waits for the workload)")
		keyboard    = fs.Bool("keyboard", false, "feed stdin to the keyboard controller")
		list        = fs.Bool("list", false, "list the available demos and exit")
		verbose     = fs.Bool("v", false, "verbose host logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		for _, name := range sortedDemoNames() {
			fmt.Printf("%-10s %s\n", name, demos[name].desc)
		}
		return nil
	}

	m := defaultMachine()
	if *machinePath != "" {
		var err error
		if m, err = loadMachine(*machinePath); err != nil {
			return err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cmdline":
			m.CmdLine = *cmdLine
		case "demo":
			m.Demo = *demoName
		case "duration":
			m.Duration = *duration
		case "keyboard":
			m.Keyboard = *keyboard
		}
	})
	if err := m.validate(); err != nil {
		return err
	}

	log := newLogger(*verbose).WithField("boot", uuid.New().String())
	log.WithFields(logrus.Fields{
		"demo":     m.Demo,
		"duration": m.Duration,
		"keyboard": m.Keyboard,
	}).Debug("machine configured")

	kfmt.SetOutputSink(newConsole())

	if m.Keyboard && stdinIsTerminal() {
		restore, err := makeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("switching terminal to raw mode: %w", err)
		}
		defer restore()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return run(ctx, m, log, os.Stdin)
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(colorable.NewColorableStderr())
	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:   isatty.IsTerminal(os.Stderr.Fd()),
		FullTimestamp: true,
	})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
