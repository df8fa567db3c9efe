// Package kfmt provides the kernel console output routines. All output goes
// to a single sink; until one is attached it is captured by an early ring
// buffer and replayed once SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// the console is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf. While no sink
// is attached it returns the early ring buffer.
func GetOutputSink() io.Writer {
	if outputSink == nil {
		return &earlyPrintBuffer
	}
	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// output sink. It accepts the verbs of the fmt package.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil w selects the early ring buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}
	fmt.Fprintf(w, format, args...)
}
