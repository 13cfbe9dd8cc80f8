// Package arena owns the byte range managed by the heap and is the only package that reads or
// writes block metadata. Every other package refers to blocks by their arena-relative offset and
// goes through the bounds-checked accessors here.
package arena

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/memutils"
)

var (
	// ErrRegionTooSmall is returned when a region cannot hold a single word-aligned block
	ErrRegionTooSmall = errors.New("arena: region too small")
	// ErrOutOfBounds is returned when an offset or pointer falls outside of the arena
	ErrOutOfBounds = errors.New("arena: access out of bounds")
	// ErrCorrupt is returned when block metadata does not decode to a valid block
	ErrCorrupt = errors.New("arena: corrupt block metadata")
)

// Pointer is an address inside the arena's address range, as handed to heap callers
type Pointer uintptr

// NilOffset terminates intrusive free lists
const NilOffset = -1

// Arena is a single contiguous region of memory. The region's bytes are backed by data and live
// at the addresses [base, base+len(data)). Blocks are laid out between Start and End, which are
// the region bounds rounded inward to a word boundary.
type Arena struct {
	base  uintptr
	data  []byte
	start int
	end   int

	release func([]byte) error
}

// New creates an arena addressed by the real location of data in memory
func New(data []byte) (*Arena, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrRegionTooSmall, "empty region")
	}

	return NewAt(uintptr(unsafe.Pointer(&data[0])), data)
}

// NewAt creates an arena for a region that begins at the externally supplied base address.
// The caller guarantees that the region does not overlap anything else it has reserved.
func NewAt(base uintptr, data []byte) (*Arena, error) {
	regionEnd := base + uintptr(len(data))
	if regionEnd < base {
		return nil, errors.Wrapf(memutils.OverflowError, "region at %#x with length %d", base, len(data))
	}

	alignedBase, err := memutils.AlignAddressUp(base, memutils.WordSize)
	if err != nil {
		return nil, err
	}
	alignedEnd := memutils.AlignAddressDown(regionEnd, memutils.WordSize)

	if alignedEnd <= alignedBase {
		return nil, errors.Wrapf(ErrRegionTooSmall, "region at %#x with length %d has no aligned words", base, len(data))
	}

	return &Arena{
		base:  base,
		data:  data,
		start: int(alignedBase - base),
		end:   int(alignedEnd - base),
	}, nil
}

// Base returns the address of the first byte of the region
func (a *Arena) Base() uintptr { return a.base }

// Len returns the length of the region in bytes, including any unaligned slack at either end
func (a *Arena) Len() int { return len(a.data) }

// Start returns the offset of the first block in the arena
func (a *Arena) Start() int { return a.start }

// End returns the offset one past the last block in the arena
func (a *Arena) End() int { return a.end }

// Size returns the number of bytes between Start and End
func (a *Arena) Size() int { return a.end - a.start }

// PointerAt converts an arena offset to an address
func (a *Arena) PointerAt(offset int) Pointer {
	return Pointer(a.base + uintptr(offset))
}

// OffsetOf converts an address to an arena offset. The second return value is false if the
// address does not fall between Start and End.
func (a *Arena) OffsetOf(pointer Pointer) (int, bool) {
	address := uintptr(pointer)
	if address < a.base+uintptr(a.start) || address >= a.base+uintptr(a.end) {
		return 0, false
	}

	return int(address - a.base), true
}

// Contains reports whether the byte range [offset, offset+n) lies between Start and End
func (a *Arena) Contains(offset, n int) bool {
	return offset >= a.start && n >= 0 && offset <= a.end && n <= a.end-offset
}

// Slice returns a view of n bytes at offset
func (a *Arena) Slice(offset, n int) ([]byte, error) {
	if !a.Contains(offset, n) {
		return nil, errors.Wrapf(ErrOutOfBounds, "range [%d, %d+%d) is outside [%d, %d)", offset, offset, n, a.start, a.end)
	}

	return a.data[offset : offset+n : offset+n], nil
}

// Snapshot returns a copy of every byte in the region
func (a *Arena) Snapshot() []byte {
	snapshot := make([]byte, len(a.data))
	copy(snapshot, a.data)
	return snapshot
}

// Release returns the region's memory to the system if the arena created it with Map. It is a
// no-op for arenas that wrap caller-owned memory. The arena must not be used afterwards.
func (a *Arena) Release() error {
	if a.release == nil {
		return nil
	}

	err := a.release(a.data)
	a.release = nil
	a.data = nil
	a.start, a.end = 0, 0
	return err
}

func (a *Arena) word(offset int) uint64 {
	if offset < a.start || offset > a.end-memutils.WordSize || (offset-a.start)%memutils.WordSize != 0 {
		panic(errors.AssertionFailedf("read of word at offset %d outside of arena [%d, %d)", offset, a.start, a.end))
	}

	return binary.LittleEndian.Uint64(a.data[offset:])
}

func (a *Arena) putWord(offset int, value uint64) {
	if offset < a.start || offset > a.end-memutils.WordSize || (offset-a.start)%memutils.WordSize != 0 {
		panic(errors.AssertionFailedf("write of word at offset %d outside of arena [%d, %d)", offset, a.start, a.end))
	}

	binary.LittleEndian.PutUint64(a.data[offset:], value)
}
