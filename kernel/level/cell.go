package level

// Token is the capability to touch L3-protected data. It is obtained by
// entering L3 and must be released with Leave once the critical section ends.
type Token struct {
	restore bool
}

// EnterL3 disables interrupts and returns the L3 token. It must be called
// with interrupts enabled; code that may already run with interrupts disabled
// (prologues, nested critical sections) uses SaveL3 instead.
func EnterL3() Token {
	AssertInterrupts(true, errL3Nested)
	return Token{restore: IRQSave()}
}

// SaveL3 returns an L3 token regardless of the current interrupt state. When
// interrupts are already disabled the token does not re-enable them on Leave.
func SaveL3() Token {
	return Token{restore: IRQSave()}
}

// Leave ends the critical section, restoring the interrupt flag that was in
// effect when the token was created.
func (t Token) Leave() {
	IRQRestore(t.restore)
}

// Cell wraps a value that may only be accessed at L3.
type Cell[T any] struct {
	v T
}

// Get returns a pointer to the protected value. The pointer must not outlive
// the critical section of tok. Calling Get with interrupts enabled is fatal.
func (c *Cell[T]) Get(tok Token) *T {
	AssertInterrupts(false, errL3NotHeld)
	return &c.v
}

// Unchecked returns the protected value without checking the interrupt
// state. It is meant for boot-time initialization before any interrupt
// source or task exists.
func (c *Cell[T]) Unchecked() *T {
	return &c.v
}
