// Package kstack manages the pool of kernel stacks handed out to tasks.
package kstack

import (
	"math/bits"
	"plugos/kernel"
	"plugos/kernel/mem"
	"unsafe"
)

// MinStackSize is the smallest stack size accepted by NewPool.
const MinStackSize = 4 * mem.PageSize

var (
	errBadStackSize = &kernel.Error{Module: "kstack", Message: "stack size must be a power of 2 of at least 16KB"}
	errBadCount     = &kernel.Error{Module: "kstack", Message: "stack count must be positive"}
	errOutOfStacks  = &kernel.Error{Module: "kstack", Message: "out of kernel stacks"}
	errNotAllocated = &kernel.Error{Module: "kstack", Message: "address is not an allocated stack"}
)

// Pool hands out fixed-size kernel stacks carved from a single reserved
// region. Each stack is aligned to its own size, so the base of the stack
// owning any address inside it is addr &^ (size-1). Allocations are tracked
// with a bitmap where a set bit marks a stack in use.
//
// A Pool is not synchronized; the task arena that owns it only calls it with
// interrupts disabled.
type Pool struct {
	// region keeps the backing memory reachable for as long as the pool is.
	region []byte

	base      uintptr
	stackSize mem.Size
	count     int
	bitmap    []uint64
	used      int
}

// NewPool reserves count stacks of stackSize bytes each.
func NewPool(stackSize mem.Size, count int) (*Pool, *kernel.Error) {
	if !stackSize.IsPowerOf2() || stackSize < MinStackSize {
		return nil, errBadStackSize
	}
	if count <= 0 {
		return nil, errBadCount
	}

	// Over-allocate by one stack so the first stack can be aligned.
	region := make([]byte, uintptr(stackSize)*uintptr(count+1))
	start := uintptr(unsafe.Pointer(&region[0]))
	mask := uintptr(stackSize) - 1

	return &Pool{
		region:    region,
		base:      (start + mask) &^ mask,
		stackSize: stackSize,
		count:     count,
		bitmap:    make([]uint64, (count+63)/64),
	}, nil
}

// AllocateStack reserves the lowest free stack and returns its base (lowest)
// address.
func (p *Pool) AllocateStack() (uintptr, *kernel.Error) {
	for word, block := range p.bitmap {
		if block == ^uint64(0) {
			continue
		}

		index := word<<6 + bits.TrailingZeros64(^block)
		if index >= p.count {
			break
		}

		p.bitmap[word] |= 1 << uint(index&63)
		p.used++
		return p.base + uintptr(index)*uintptr(p.stackSize), nil
	}

	return 0, errOutOfStacks
}

// FreeStack returns the stack with base address addr to the pool.
func (p *Pool) FreeStack(addr uintptr) *kernel.Error {
	index, ok := p.indexOf(addr)
	if !ok || p.bitmap[index>>6]&(1<<uint(index&63)) == 0 {
		return errNotAllocated
	}

	p.bitmap[index>>6] &^= 1 << uint(index&63)
	p.used--
	return nil
}

// StackSize returns the size of each stack in the pool.
func (p *Pool) StackSize() mem.Size {
	return p.stackSize
}

// StackBase returns the base of the stack that contains addr.
func (p *Pool) StackBase(addr uintptr) (uintptr, bool) {
	if addr < p.base || addr >= p.base+uintptr(p.count)*uintptr(p.stackSize) {
		return 0, false
	}
	return addr &^ (uintptr(p.stackSize) - 1), true
}

// Free returns the number of stacks that can still be allocated.
func (p *Pool) Free() int {
	return p.count - p.used
}

func (p *Pool) indexOf(addr uintptr) (int, bool) {
	base, ok := p.StackBase(addr)
	if !ok || base != addr {
		return 0, false
	}
	return int((addr - p.base) / uintptr(p.stackSize)), true
}
