package mem

const (
	// PageShift is equal to log2(PageSize).
	PageShift = 12

	// PageSize defines the system's page size in bytes. Kernel stacks are
	// always a multiple of it.
	PageSize = Size(1 << PageShift)
)
