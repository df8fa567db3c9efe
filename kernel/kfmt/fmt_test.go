package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer = ringBuffer{}
	}()
	outputSink = nil
	earlyPrintBuffer = ringBuffer{}

	Printf("task %d: %s\n", 3, "Run")
	if GetOutputSink() != &earlyPrintBuffer {
		t.Fatal("expected GetOutputSink to return the early buffer while no sink is attached")
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	exp := "task 3: Run\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to replay %q; got %q", exp, got)
	}

	Printf("vector %#x", 0x20)
	if exp += "vector 0x20"; buf.String() != exp {
		t.Fatalf("expected output %q; got %q", exp, buf.String())
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%016x", uint64(0xbeef))

	if exp := "000000000000beef"; buf.String() != exp {
		t.Fatalf("expected %q; got %q", exp, buf.String())
	}
}
