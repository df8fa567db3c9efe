package main

import (
	"bytes"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

const (
	ansiKernel = "\x1b[36m"
	ansiReset  = "\x1b[0m"
)

// console is the sink for kernel output. On a terminal kernel text is
// painted so that it stands apart from the host log.
type console struct {
	out   io.Writer
	color bool
}

// newConsole returns a console writing to stdout.
func newConsole() *console {
	fd := os.Stdout.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return &console{out: colorable.NewColorableStdout(), color: tty}
}

func (c *console) Write(p []byte) (int, error) {
	if !c.color {
		return c.out.Write(p)
	}

	var buf bytes.Buffer
	buf.Grow(len(p) + len(ansiKernel) + len(ansiReset))
	buf.WriteString(ansiKernel)
	buf.Write(p)
	buf.WriteString(ansiReset)
	if _, err := c.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// stdinIsTerminal reports whether keys come from an interactive terminal.
func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}
