package bins

import (
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/arena"
)

// Index is a table of intrusive free lists, one per size class. List links live in the free
// blocks' headers inside the arena, so Insert and Remove are O(1) and the index itself holds
// only the list heads, a per-class count and a bitmap of non-empty classes.
//
// Blocks are referenced by the offset of their header. Free blocks never carry padding, so the
// offset of the header is also the offset of the block.
type Index struct {
	arena *arena.Arena

	heads      [NumBins]int
	counts     [NumBins]int
	isFreeBits uint32
	freeCount  int
	freeBytes  int
}

// NewIndex creates an empty index over the free blocks of a
func NewIndex(a *arena.Arena) *Index {
	x := &Index{arena: a}
	x.Reset()
	return x
}

// Reset forgets every block in the index without touching the arena
func (x *Index) Reset() {
	for class := range x.heads {
		x.heads[class] = arena.NilOffset
		x.counts[class] = 0
	}
	x.isFreeBits = 0
	x.freeCount = 0
	x.freeBytes = 0
}

// Insert pushes the free block at ref onto the head of its class's list
func (x *Index) Insert(ref int) {
	size := x.arena.UsableSizeAt(ref)
	class := Classify(size)

	head := x.heads[class]
	x.arena.SetNext(ref, head)
	x.arena.SetPrev(ref, arena.NilOffset)
	if head != arena.NilOffset {
		x.arena.SetPrev(head, ref)
	}

	x.heads[class] = ref
	x.counts[class]++
	x.isFreeBits |= 1 << class
	x.freeCount++
	x.freeBytes += size
}

// Remove unlinks the free block at ref from its class's list
func (x *Index) Remove(ref int) {
	size := x.arena.UsableSizeAt(ref)
	class := Classify(size)
	next, prev := x.arena.FreeLinks(ref)

	if next != arena.NilOffset {
		x.arena.SetPrev(next, prev)
	}

	if prev != arena.NilOffset {
		x.arena.SetNext(prev, next)
	} else {
		if x.heads[class] != ref {
			panic(errors.AssertionFailedf("block at offset %d was not in the free list at the expected location", ref))
		}
		x.heads[class] = next
	}

	x.arena.SetNext(ref, arena.NilOffset)
	x.arena.SetPrev(ref, arena.NilOffset)

	x.counts[class]--
	if x.counts[class] == 0 {
		x.isFreeBits &^= 1 << class
	}
	x.freeCount--
	x.freeBytes -= size
}

// FirstNonEmpty returns the first class at or above from that holds at least one block
func (x *Index) FirstNonEmpty(from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	if from >= NumBins {
		return 0, false
	}

	freeMap := x.isFreeBits & (math.MaxUint32 << from)
	if freeMap == 0 {
		return 0, false
	}

	return bits.TrailingZeros32(freeMap), true
}

// Head returns the first block in class, or arena.NilOffset
func (x *Index) Head(class int) int {
	return x.heads[class]
}

// Next returns the block after ref in its class, or arena.NilOffset
func (x *Index) Next(ref int) int {
	next, _ := x.arena.FreeLinks(ref)
	return next
}

// FindCandidate scans classes upward from Classify(minSize) and returns the first block for
// which fits returns true. Within a class blocks are tried in list order, since alignment
// padding can make a block that is nominally large enough too small.
func (x *Index) FindCandidate(minSize int, fits func(ref int, usable int) bool) (int, bool) {
	for class, ok := x.FirstNonEmpty(Classify(minSize)); ok; class, ok = x.FirstNonEmpty(class + 1) {
		for ref := x.heads[class]; ref != arena.NilOffset; ref = x.Next(ref) {
			if fits(ref, x.arena.UsableSizeAt(ref)) {
				return ref, true
			}
		}
	}

	return arena.NilOffset, false
}

// Walk calls visit for every block in every class, in class order and then list order
func (x *Index) Walk(visit func(class int, ref int) error) error {
	for class := 0; class < NumBins; class++ {
		for ref := x.heads[class]; ref != arena.NilOffset; ref = x.Next(ref) {
			if err := visit(class, ref); err != nil {
				return err
			}
		}
	}

	return nil
}

// Len returns the number of free blocks in the index
func (x *Index) Len() int { return x.freeCount }

// ClassLen returns the number of free blocks in class
func (x *Index) ClassLen(class int) int { return x.counts[class] }

// FreeBytes returns the sum of the usable sizes of every block in the index
func (x *Index) FreeBytes() int { return x.freeBytes }

// Validate checks that every list is doubly linked consistently, that every block is free and
// filed under its own class, and that the counters and bitmap agree with the lists
func (x *Index) Validate() error {
	var totalCount, totalBytes int

	for class := 0; class < NumBins; class++ {
		count := 0
		prev := arena.NilOffset

		for ref := x.heads[class]; ref != arena.NilOffset; ref = x.Next(ref) {
			if count > x.counts[class] {
				return errors.AssertionFailedf("free list for class %d is longer than its count %d", class, x.counts[class])
			}

			block, err := x.arena.BlockAt(ref)
			if err != nil {
				return errors.Wrapf(err, "free list for class %d", class)
			}

			if !block.IsFree() {
				return errors.AssertionFailedf("block at offset %d is in the free list but is not free", ref)
			}

			if block.Prev != prev {
				return errors.AssertionFailedf("block at offset %d lists %d as its previous block, expected %d", ref, block.Prev, prev)
			}

			if Classify(block.UsableSize) != class {
				return errors.AssertionFailedf("block at offset %d with size %d is filed under class %d", ref, block.UsableSize, class)
			}

			count++
			totalBytes += block.UsableSize
			prev = ref
		}

		if count != x.counts[class] {
			return errors.AssertionFailedf("free list for class %d has %d blocks but its count is %d", class, count, x.counts[class])
		}

		if (count != 0) != (x.isFreeBits&(1<<class) != 0) {
			return errors.AssertionFailedf("free bitmap disagrees with free list for class %d", class)
		}

		totalCount += count
	}

	if totalCount != x.freeCount {
		return errors.AssertionFailedf("index holds %d blocks but its count is %d", totalCount, x.freeCount)
	}

	if totalBytes != x.freeBytes {
		return errors.AssertionFailedf("index holds %d free bytes but its total is %d", totalBytes, x.freeBytes)
	}

	return nil
}
