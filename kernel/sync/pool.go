package sync

import "plugos/kernel/level"

// ResourcePool is the container behind a semaphore. Implementations do not
// need to be safe for concurrent use by goroutines, but they must tolerate
// being called from any synchronization level.
type ResourcePool[E any] interface {
	// Get removes and returns the oldest item.
	Get() (E, bool)

	// Insert adds an item and returns false if the pool is full.
	Insert(E) bool
}

// Queue is a FIFO ResourcePool. Its zero value is an empty, unbounded queue.
type Queue[E any] struct {
	items    level.Cell[[]E]
	capacity int
}

// NewQueue returns a queue that holds at most capacity items. A capacity of
// zero means unbounded.
func NewQueue[E any](capacity int) *Queue[E] {
	return &Queue[E]{capacity: capacity}
}

// Get implements ResourcePool.
func (q *Queue[E]) Get() (E, bool) {
	tok := level.SaveL3()
	defer tok.Leave()

	var zero E
	items := q.items.Get(tok)
	if len(*items) == 0 {
		return zero, false
	}

	e := (*items)[0]
	(*items)[0] = zero
	*items = (*items)[1:]
	return e, true
}

// Insert implements ResourcePool.
func (q *Queue[E]) Insert(e E) bool {
	tok := level.SaveL3()
	defer tok.Leave()

	items := q.items.Get(tok)
	if q.capacity > 0 && len(*items) >= q.capacity {
		return false
	}
	*items = append(*items, e)
	return true
}

// Len returns the number of queued items.
func (q *Queue[E]) Len() int {
	tok := level.SaveL3()
	n := len(*q.items.Get(tok))
	tok.Leave()
	return n
}
