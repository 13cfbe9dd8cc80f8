package allocator_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/allocator"
	"github.com/pikern/kheap/arena"
	"github.com/stretchr/testify/require"
)

type liveAllocation struct {
	pointer   arena.Pointer
	size      int
	alignment uint
	fill      byte
}

func checkNoAdjacentFree(t testing.TB, heap *allocator.Allocator) {
	prevFree := false
	prevEnd := 0
	first := true
	require.NoError(t, heap.VisitAllRegions(func(block arena.Block) error {
		if !first {
			require.Equal(t, prevEnd, block.Start)
		}
		require.False(t, prevFree && block.IsFree(), "free blocks at adjacent offsets ending at %d", block.End())

		first = false
		prevFree = block.IsFree()
		prevEnd = block.End()
		return nil
	}))
}

func TestRandomizedSequence(t *testing.T) {
	heap, _ := newTestHeap(t, 1<<16, allocator.CreateOptions{Flags: allocator.AllocatorCreateTrackAllocations})
	random := rand.New(rand.NewSource(1))

	var live []liveAllocation
	outOfMemory := 0

	for i := 0; i < 3000; i++ {
		if len(live) > 0 && random.Intn(100) < 45 {
			index := random.Intn(len(live))
			alloc := live[index]
			live[index] = live[len(live)-1]
			live = live[:len(live)-1]

			view, err := heap.Bytes(alloc.pointer, alloc.size)
			require.NoError(t, err)
			for _, b := range view {
				require.Equal(t, alloc.fill, b)
			}

			heap.Deallocate(alloc.pointer, alloc.size, alloc.alignment)
			checkNoAdjacentFree(t, heap)
		} else {
			size := 1 + random.Intn(1024)
			alignment := uint(1) << random.Intn(10)

			pointer, err := heap.Allocate(size, alignment)
			if err != nil {
				require.True(t, errors.Is(err, allocator.ErrOutOfMemory))
				outOfMemory++
				continue
			}
			require.Zero(t, uintptr(pointer)%uintptr(alignment))

			fill := byte(random.Intn(255) + 1)
			view, err := heap.Bytes(pointer, size)
			require.NoError(t, err)
			for index := range view {
				view[index] = fill
			}

			live = append(live, liveAllocation{pointer: pointer, size: size, alignment: alignment, fill: fill})
		}

		require.NoError(t, heap.Validate())
		require.Equal(t, len(live), heap.AllocationCount())
	}

	for _, alloc := range live {
		heap.Deallocate(alloc.pointer, alloc.size, alloc.alignment)
	}

	require.NoError(t, heap.Validate())
	require.True(t, heap.IsEmpty())
	require.Equal(t, 1, heap.FreeRegionsCount())
	require.Equal(t, heap.Capacity(), heap.SumFreeSize())
	t.Logf("%d allocations failed with out of memory", outOfMemory)
}

func TestSplitRemaindersRespectFloor(t *testing.T) {
	const floor = 32
	heap, _ := newTestHeap(t, 1<<14, allocator.CreateOptions{MinSplitSize: floor})
	random := rand.New(rand.NewSource(7))

	var live []liveAllocation
	for i := 0; i < 500; i++ {
		if len(live) > 0 && random.Intn(3) == 0 {
			index := random.Intn(len(live))
			heap.Deallocate(live[index].pointer, live[index].size, live[index].alignment)
			live = append(live[:index], live[index+1:]...)
			continue
		}

		size := 8 * (1 + random.Intn(32))
		before := heap.FreeRegionsCount()
		pointer, usable, err := heap.AllocateSized(size, 8)
		if err != nil {
			continue
		}

		// a split leaves the number of free blocks unchanged and creates a remainder of at
		// least the floor; taking the whole block removes one free block
		if heap.FreeRegionsCount() == before {
			require.Equal(t, size, usable)
			require.NoError(t, heap.VisitAllRegions(func(block arena.Block) error {
				if block.IsFree() && block.Start == int(uintptr(pointer)-testBase)+usable+arena.FooterSize {
					require.GreaterOrEqual(t, block.UsableSize, floor)
				}
				return nil
			}))
		} else {
			require.Equal(t, before-1, heap.FreeRegionsCount())
			require.Less(t, usable-size, arena.Overhead+floor)
		}

		live = append(live, liveAllocation{pointer: pointer, size: size, alignment: 8})
	}

	for _, alloc := range live {
		heap.Deallocate(alloc.pointer, alloc.size, alloc.alignment)
	}
	require.Equal(t, heap.Capacity(), heap.SumFreeSize())
}

func TestConcurrentAllocations(t *testing.T) {
	heap, _ := newTestHeap(t, 1<<18, allocator.CreateOptions{})

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			random := rand.New(rand.NewSource(seed))

			for i := 0; i < 200; i++ {
				size := 1 + random.Intn(256)
				pointer, err := heap.Allocate(size, 16)
				if err != nil {
					continue
				}

				view, err := heap.Bytes(pointer, size)
				if err == nil {
					view[0] = byte(seed)
				}
				heap.Deallocate(pointer, size, 16)
			}
		}(int64(worker))
	}
	wg.Wait()

	require.NoError(t, heap.Validate())
	require.True(t, heap.IsEmpty())
	require.Equal(t, heap.Capacity(), heap.SumFreeSize())
}
