// Package allocator implements the kernel heap: a segregated free-list allocator over a single
// arena. Free blocks are filed by size class in a bins.Index, allocation is first-fit within the
// first class that can satisfy the request, and every deallocation merges the freed block with
// both neighbors so that no two free blocks are ever adjacent.
package allocator

import (
	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/arena"
	"github.com/pikern/kheap/bins"
	"github.com/pikern/kheap/internal/utils"
	"github.com/pikern/kheap/memutils"
	"golang.org/x/exp/slog"
)

// Allocator is the heap. All of its methods are safe for concurrent use unless it was created
// with AllocatorCreateExternallySynchronized.
type Allocator struct {
	logger      *slog.Logger
	mutex       utils.OptionalMutex
	interrupts  InterruptController
	createFlags CreateFlags

	minSplitSize int

	arena *arena.Arena
	bins  *bins.Index

	allocCount int
	allocBytes int
	tracker    *allocationTracker
}

type allocRequest struct {
	ref       int
	blockSize int
	padding   int
	size      int
}

func (a *Allocator) enter() InterruptState {
	state := a.interrupts.Disable()
	a.mutex.Lock()
	return state
}

func (a *Allocator) leave(state InterruptState) {
	a.mutex.Unlock()
	a.interrupts.Restore(state)
}

// Allocate returns a pointer to at least size bytes aligned to alignment. size must be positive
// and alignment must be a power of two. ErrOutOfMemory is returned when no free block can hold
// the request; the heap is unchanged in that case.
func (a *Allocator) Allocate(size int, alignment uint) (arena.Pointer, error) {
	pointer, _, err := a.AllocateSized(size, alignment)
	return pointer, err
}

// AllocateSized behaves like Allocate but also returns the usable size of the allocation, which
// can exceed size when the chosen block was too small to split. Either value may be passed back
// to Deallocate.
func (a *Allocator) AllocateSized(size int, alignment uint) (arena.Pointer, int, error) {
	a.logger.Debug("Allocator::Allocate", slog.Int("Size", size), slog.Uint64("Alignment", uint64(alignment)))

	if size <= 0 {
		return 0, 0, errors.Wrapf(ErrInvalidSize, "cannot allocate %d bytes", size)
	}

	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return 0, 0, err
	}

	requestSize, err := memutils.CheckedAlignUp(size, memutils.WordSize)
	if err != nil {
		return 0, 0, errors.Mark(errors.Wrapf(err, "allocation of %d bytes", size), ErrOutOfMemory)
	}

	state := a.enter()
	defer a.leave(state)

	request, found := a.findFit(requestSize, alignment)
	if !found {
		a.logger.Debug("  Allocate FAILED", slog.Int("Size", size), slog.Int("FreeBytes", a.bins.FreeBytes()))
		return 0, 0, errors.Wrapf(ErrOutOfMemory, "no free block holds %d bytes aligned to %d", size, alignment)
	}

	block := a.commit(request)
	pointer := a.arena.PointerAt(block.DataOffset())

	if a.tracker != nil {
		a.tracker.track(pointer, size, alignment, block.UsableSize)
	}

	memutils.DebugValidate(memutils.ValidateFunc(a.validate))

	return pointer, block.UsableSize, nil
}

// findFit searches the bins without modifying anything, so that a failed search leaves the
// heap untouched
func (a *Allocator) findFit(size int, alignment uint) (allocRequest, bool) {
	var request allocRequest

	_, found := a.bins.FindCandidate(size, func(ref int, usable int) bool {
		padding, err := a.arena.PaddingFor(ref, alignment)
		if err != nil || padding > usable-size {
			return false
		}

		request = allocRequest{
			ref:       ref,
			blockSize: usable,
			padding:   padding,
			size:      size,
		}
		return true
	})

	return request, found
}

func (a *Allocator) commit(request allocRequest) arena.Block {
	a.bins.Remove(request.ref)

	usable := request.size
	leftover := request.blockSize - request.padding - request.size

	if leftover >= arena.Overhead+a.minSplitSize {
		tail := request.ref + request.padding + arena.Overhead + request.size
		a.arena.WriteFreeBlock(tail, leftover-arena.Overhead, arena.NilOffset, arena.NilOffset)
		a.bins.Insert(tail)
	} else {
		usable += leftover
	}

	block := a.arena.WriteAllocatedBlock(request.ref, request.padding, usable)
	a.allocCount++
	a.allocBytes += usable

	return block
}

// Deallocate returns an allocation to the heap. pointer, size and alignment must match a
// previous successful Allocate call that has not been deallocated yet; size may be either the
// requested size or the usable size reported by AllocateSized. Violating this is undefined
// behavior. Only the structural checks needed to stay inside the arena are always performed;
// argument checks require AllocatorCreateTrackAllocations or the debug_kheap build tag, and
// panic when they fail.
func (a *Allocator) Deallocate(pointer arena.Pointer, size int, alignment uint) {
	a.logger.Debug("Allocator::Deallocate",
		slog.Uint64("Pointer", uint64(pointer)),
		slog.Int("Size", size),
		slog.Uint64("Alignment", uint64(alignment)),
	)

	memutils.DebugCheckPow2(alignment, "alignment")

	state := a.enter()
	defer a.leave(state)

	block, err := a.liveBlock(pointer)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "deallocate"))
	}

	if a.tracker != nil {
		err = a.tracker.release(pointer, size, alignment)
		if err != nil {
			panic(err)
		}
	}

	a.release(block)

	memutils.DebugValidate(memutils.ValidateFunc(a.validate))
}

func (a *Allocator) liveBlock(pointer arena.Pointer) (arena.Block, error) {
	dataOffset, ok := a.arena.OffsetOf(pointer)
	if !ok {
		return arena.Block{}, errors.Wrapf(ErrInvalidPointer, "pointer %#x is outside of the heap", uintptr(pointer))
	}

	block, err := a.arena.BlockAtData(dataOffset)
	if err != nil {
		return arena.Block{}, errors.Mark(errors.Wrapf(err, "pointer %#x", uintptr(pointer)), ErrInvalidPointer)
	}

	return block, nil
}

// release merges block with its right neighbor and then its left neighbor, whichever are free,
// strips its padding and files the result in the bins
func (a *Allocator) release(block arena.Block) {
	a.allocCount--
	a.allocBytes -= block.UsableSize

	start := block.Start
	end := block.End()

	if end < a.arena.End() && a.arena.StateAt(end) == arena.StateFree {
		next, err := a.arena.BlockAt(end)
		if err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "block after offset %d", start))
		}

		a.bins.Remove(next.Start)
		end = next.End()
	}

	if start > a.arena.Start() {
		prev, err := a.arena.BlockEndingAt(start)
		if err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "block before offset %d", start))
		}

		if prev.IsFree() {
			a.bins.Remove(prev.Start)
			start = prev.Start
		}
	}

	a.arena.WriteFreeBlock(start, end-start-arena.Overhead, arena.NilOffset, arena.NilOffset)
	a.bins.Insert(start)
}

// UsableSize returns the number of bytes available at pointer
func (a *Allocator) UsableSize(pointer arena.Pointer) (int, error) {
	state := a.enter()
	defer a.leave(state)

	block, err := a.liveBlock(pointer)
	if err != nil {
		return 0, err
	}

	return block.UsableSize, nil
}

// Bytes returns a view of the first n bytes of the allocation at pointer. The view is only
// valid until the allocation is deallocated.
func (a *Allocator) Bytes(pointer arena.Pointer, n int) ([]byte, error) {
	state := a.enter()
	defer a.leave(state)

	block, err := a.liveBlock(pointer)
	if err != nil {
		return nil, err
	}

	if n < 0 || n > block.UsableSize {
		return nil, errors.Wrapf(arena.ErrOutOfBounds, "requested %d bytes of a %d byte allocation", n, block.UsableSize)
	}

	return a.arena.Slice(block.DataOffset(), n)
}

// Arena returns the region this allocator manages
func (a *Allocator) Arena() *arena.Arena {
	return a.arena
}
