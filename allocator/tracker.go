package allocator

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/pikern/kheap/arena"
)

type trackedAllocation struct {
	size      int
	alignment uint
	usable    int
}

// allocationTracker remembers the arguments of every live allocation so that Deallocate can
// catch double frees, foreign pointers and mismatched sizes. It is only active with
// AllocatorCreateTrackAllocations or the debug_kheap build tag.
type allocationTracker struct {
	live *swiss.Map[arena.Pointer, trackedAllocation]
}

func newAllocationTracker() *allocationTracker {
	return &allocationTracker{
		live: swiss.NewMap[arena.Pointer, trackedAllocation](42),
	}
}

func (t *allocationTracker) track(pointer arena.Pointer, size int, alignment uint, usable int) {
	t.live.Put(pointer, trackedAllocation{
		size:      size,
		alignment: alignment,
		usable:    usable,
	})
}

func (t *allocationTracker) release(pointer arena.Pointer, size int, alignment uint) error {
	allocation, ok := t.live.Get(pointer)
	if !ok {
		return errors.AssertionFailedf("pointer %#x was never allocated or has already been freed", uintptr(pointer))
	}

	if size != allocation.size && size != allocation.usable {
		return errors.AssertionFailedf("pointer %#x was allocated with size %d (usable %d) but freed with size %d",
			uintptr(pointer), allocation.size, allocation.usable, size)
	}

	if alignment != allocation.alignment {
		return errors.AssertionFailedf("pointer %#x was allocated with alignment %d but freed with alignment %d",
			uintptr(pointer), allocation.alignment, alignment)
	}

	t.live.Delete(pointer)
	return nil
}

func (t *allocationTracker) count() int {
	return t.live.Count()
}
