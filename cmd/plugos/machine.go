package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Machine describes a simulated machine: the command line handed to the
// kernel, the workload it runs and how long the host lets it run.
type Machine struct {
	// CmdLine is passed to the kernel verbatim.
	CmdLine string `yaml:"cmdline"`

	// Demo names the workload; see the demos registry.
	Demo string `yaml:"demo"`

	// Duration bounds the run. Zero means that the machine runs until its
	// workload powers it off.
	Duration time.Duration `yaml:"duration"`

	// Keyboard attaches the keyboard controller and feeds it from stdin.
	Keyboard bool `yaml:"keyboard"`
}

// defaultMachine is used when no machine file is given.
func defaultMachine() *Machine {
	return &Machine{
		CmdLine:  "tick_us=20000",
		Demo:     "pingpong",
		Duration: 5 * time.Second,
	}
}

// machineFile mirrors Machine with a textual duration ("1500ms", "3s").
type machineFile struct {
	CmdLine  *string `yaml:"cmdline"`
	Demo     *string `yaml:"demo"`
	Duration *string `yaml:"duration"`
	Keyboard *bool   `yaml:"keyboard"`
}

// parseMachine decodes a YAML machine description on top of the defaults.
func parseMachine(data []byte) (*Machine, error) {
	var f machineFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("decoding machine file: %w", err)
	}

	m := defaultMachine()
	if f.CmdLine != nil {
		m.CmdLine = *f.CmdLine
	}
	if f.Demo != nil {
		m.Demo = *f.Demo
	}
	if f.Keyboard != nil {
		m.Keyboard = *f.Keyboard
	}
	if f.Duration != nil {
		d, err := time.ParseDuration(*f.Duration)
		if err != nil {
			return nil, fmt.Errorf("machine duration: %w", err)
		}
		m.Duration = d
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// loadMachine reads the machine file at path.
func loadMachine(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading machine file: %w", err)
	}
	return parseMachine(data)
}

func (m *Machine) validate() error {
	d, ok := demos[m.Demo]
	if !ok {
		return fmt.Errorf("unknown demo %q (available: %s)", m.Demo, demoNames())
	}
	if m.Duration < 0 {
		return fmt.Errorf("negative duration %s", m.Duration)
	}
	if d.needsKeyboard && !m.Keyboard {
		return fmt.Errorf("demo %q needs the keyboard", m.Demo)
	}
	return nil
}
