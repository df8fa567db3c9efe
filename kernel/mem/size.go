package mem

import (
	"plugos/kernel"

	"github.com/inhies/go-bytesize"
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

var errBadSize = &kernel.Error{Module: "mem", Message: "malformed memory size"}

// ParseSize converts a human readable size such as "16KB" or "1MB" into a
// Size. Units use powers of 1024.
func ParseSize(s string) (Size, *kernel.Error) {
	b, err := bytesize.Parse(s)
	if err != nil || b < 0 {
		return 0, errBadSize
	}
	return Size(b), nil
}

// String returns the size in the largest unit that keeps it above 1.
func (s Size) String() string {
	return bytesize.New(float64(s)).String()
}

// IsPowerOf2 returns true if s is a non-zero power of two.
func (s Size) IsPowerOf2() bool {
	return s != 0 && s&(s-1) == 0
}
