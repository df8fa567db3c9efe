package kfmt

import "io"

// ringBufferSize defines size of the ring buffer that buffers early Printf
// output. It holds a little more than a full 80x25 text screen.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it.
// Reading drains the buffer; once drained Read reports io.EOF.
type ringBuffer struct {
	buffer [ringBufferSize]byte

	// start is the index of the oldest buffered byte and count the number
	// of buffered bytes.
	start, count int
}

// Write appends p to the buffer, overwriting the oldest data when full.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		end := (rb.start + rb.count) % ringBufferSize
		rb.buffer[end] = b

		if rb.count == ringBufferSize {
			rb.start = (rb.start + 1) % ringBufferSize
			continue
		}
		rb.count++
	}

	return len(p), nil
}

// Read copies up to len(p) buffered bytes into p, oldest first.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && rb.count > 0 {
		// copy the contiguous run up to the end of the array or the
		// end of the data, whichever comes first.
		run := ringBufferSize - rb.start
		if run > rb.count {
			run = rb.count
		}
		copied := copy(p[n:], rb.buffer[rb.start:rb.start+run])

		n += copied
		rb.start = (rb.start + copied) % ringBufferSize
		rb.count -= copied
	}

	return n, nil
}

// Len returns the number of buffered bytes.
func (rb *ringBuffer) Len() int {
	return rb.count
}
