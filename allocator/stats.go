package allocator

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pikern/kheap/arena"
	"github.com/pikern/kheap/bins"
	"github.com/pikern/kheap/memutils"
)

// Validate walks every block in the arena and every list in the bin index and returns an
// error describing the first broken heap invariant it finds
func (a *Allocator) Validate() error {
	state := a.enter()
	defer a.leave(state)

	return a.validate()
}

func (a *Allocator) validate() error {
	err := a.bins.Validate()
	if err != nil {
		return err
	}

	walkFree := swiss.NewMap[int, int](uint32(a.bins.Len() + 1))
	var allocCount, allocBytes int
	prevFree := false

	err = a.arena.Walk(func(block arena.Block) error {
		if block.IsFree() {
			if prevFree {
				return errors.AssertionFailedf("free block at offset %d follows another free block", block.Start)
			}

			if block.UsableSize < memutils.WordSize {
				return errors.AssertionFailedf("free block at offset %d has %d usable bytes", block.Start, block.UsableSize)
			}

			walkFree.Put(block.Start, block.UsableSize)
		} else {
			if block.UsableSize < memutils.WordSize {
				return errors.AssertionFailedf("allocated block at offset %d has %d usable bytes", block.Start, block.UsableSize)
			}

			allocCount++
			allocBytes += block.UsableSize
		}

		prevFree = block.IsFree()
		return nil
	})
	if err != nil {
		return errors.NewAssertionErrorWithWrappedErrf(err, "arena walk")
	}

	if walkFree.Count() != a.bins.Len() {
		return errors.AssertionFailedf("the arena holds %d free blocks but the bin index holds %d", walkFree.Count(), a.bins.Len())
	}

	err = a.bins.Walk(func(class int, ref int) error {
		if _, ok := walkFree.Get(ref); !ok {
			return errors.AssertionFailedf("bin %d lists offset %d, which is not a free block in the arena", class, ref)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if allocCount != a.allocCount {
		return errors.AssertionFailedf("the arena holds %d allocations but the allocator counted %d", allocCount, a.allocCount)
	}

	if allocBytes != a.allocBytes {
		return errors.AssertionFailedf("the arena holds %d allocated bytes but the allocator counted %d", allocBytes, a.allocBytes)
	}

	if a.tracker != nil && a.tracker.count() != allocCount {
		return errors.AssertionFailedf("the allocation tracker holds %d allocations but the arena holds %d", a.tracker.count(), allocCount)
	}

	return nil
}

// AllocationCount returns the number of live allocations
func (a *Allocator) AllocationCount() int {
	state := a.enter()
	defer a.leave(state)

	return a.allocCount
}

// FreeRegionsCount returns the number of free blocks
func (a *Allocator) FreeRegionsCount() int {
	state := a.enter()
	defer a.leave(state)

	return a.bins.Len()
}

// SumFreeSize returns the total usable size of every free block. A single allocation may
// not be able to use all of it, since every block costs arena.Overhead bytes of metadata.
func (a *Allocator) SumFreeSize() int {
	state := a.enter()
	defer a.leave(state)

	return a.bins.FreeBytes()
}

// Size returns the number of bytes the allocator manages, including block metadata
func (a *Allocator) Size() int {
	return a.arena.Size()
}

// Capacity returns the largest usable size a single allocation can have in an empty heap
func (a *Allocator) Capacity() int {
	return a.arena.Size() - arena.Overhead
}

// IsEmpty returns true when there are no live allocations
func (a *Allocator) IsEmpty() bool {
	return a.AllocationCount() == 0
}

// AddStatistics adds this heap's summary to stats
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	state := a.enter()
	defer a.leave(state)

	stats.ArenaCount++
	stats.ArenaBytes += a.arena.Size()
	stats.AllocationCount += a.allocCount
	stats.AllocationBytes += a.allocBytes
}

// AddDetailedStatistics walks the arena and adds every block to stats. Allocation, free and
// overhead bytes of one arena always sum to its ArenaBytes.
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	state := a.enter()
	defer a.leave(state)

	a.addDetailedStatistics(stats)
}

func (a *Allocator) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.ArenaCount++
	stats.ArenaBytes += a.arena.Size()

	_ = a.arena.Walk(func(block arena.Block) error {
		if block.IsFree() {
			stats.AddFreeBlock(block.UsableSize)
		} else {
			stats.AddAllocation(block.UsableSize)
		}
		stats.AddOverhead(block.TotalLen() - block.UsableSize)
		return nil
	})
}

// VisitAllRegions calls handleBlock for every block in the arena in address order, stopping at
// the first error. handleBlock must not call back into the allocator.
func (a *Allocator) VisitAllRegions(handleBlock func(block arena.Block) error) error {
	state := a.enter()
	defer a.leave(state)

	return a.arena.Walk(handleBlock)
}

// PrintDetailedMap writes a JSON object describing the heap and every block in it to writer
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	state := a.enter()
	defer a.leave(state)

	a.printDetailedMap(writer)
}

func (a *Allocator) printDetailedMap(writer *jwriter.Writer) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	a.addDetailedStatistics(&stats)

	objState := writer.Object()
	defer objState.End()

	objState.Name("Base").String(fmt.Sprintf("%#x", a.arena.Base()))
	objState.Name("TotalBytes").Int(stats.ArenaBytes)
	objState.Name("AllocatedBytes").Int(stats.AllocationBytes)
	objState.Name("UnusedBytes").Int(stats.FreeBytes)
	objState.Name("OverheadBytes").Int(stats.OverheadBytes)
	objState.Name("Allocations").Int(stats.AllocationCount)
	objState.Name("UnusedRanges").Int(stats.FreeBlockCount)

	binsArray := objState.Name("Bins").Array()
	for class := 0; class < bins.NumBins; class++ {
		binsArray.Int(a.bins.ClassLen(class))
	}
	binsArray.End()

	blocksArray := objState.Name("Blocks").Array()
	defer blocksArray.End()

	_ = a.arena.Walk(func(block arena.Block) error {
		obj := blocksArray.Object()
		defer obj.End()

		obj.Name("Offset").Int(block.Start)
		obj.Name("Type").String(block.State.String())
		obj.Name("Size").Int(block.UsableSize)
		if !block.IsFree() {
			obj.Name("Padding").Int(block.Padding)
		}
		return nil
	})
}

// BuildStatsString returns the heap's statistics as a JSON document. When detailedMap is true
// the document also lists every block.
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	state := a.enter()
	defer a.leave(state)

	writer := jwriter.NewWriter()
	objState := writer.Object()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.addDetailedStatistics(&stats)

	totalObj := objState.Name("Total").Object()
	totalObj.Name("ArenaCount").Int(stats.ArenaCount)
	totalObj.Name("ArenaBytes").Int(stats.ArenaBytes)
	totalObj.Name("AllocationCount").Int(stats.AllocationCount)
	totalObj.Name("AllocationBytes").Int(stats.AllocationBytes)
	totalObj.Name("UnusedRangeCount").Int(stats.FreeBlockCount)
	totalObj.Name("UnusedBytes").Int(stats.FreeBytes)
	totalObj.Name("OverheadBytes").Int(stats.OverheadBytes)
	if stats.AllocationCount > 0 {
		totalObj.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		totalObj.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.FreeBlockCount > 0 {
		totalObj.Name("UnusedRangeSizeMin").Int(stats.FreeBlockSizeMin)
		totalObj.Name("UnusedRangeSizeMax").Int(stats.FreeBlockSizeMax)
	}
	totalObj.End()

	if detailedMap {
		a.printDetailedMap(objState.Name("DetailedMap"))
	}

	objState.End()

	return string(writer.Bytes())
}
