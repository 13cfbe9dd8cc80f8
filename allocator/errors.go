package allocator

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory is returned when no free block in any size class can hold the requested size
	// at the requested alignment, or when computing the request's footprint overflows. The heap is
	// left exactly as it was before the failed call.
	ErrOutOfMemory = errors.New("kheap: out of memory")
	// ErrInvalidSize is returned for non-positive allocation sizes and invalid configuration sizes
	ErrInvalidSize = errors.New("kheap: invalid size")
	// ErrInvalidPointer is returned when a pointer does not identify a live allocation in this heap
	ErrInvalidPointer = errors.New("kheap: invalid pointer")
)
