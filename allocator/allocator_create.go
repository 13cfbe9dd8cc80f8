package allocator

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/arena"
	"github.com/pikern/kheap/bins"
	"github.com/pikern/kheap/internal/utils"
	"github.com/pikern/kheap/memutils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that the allocator will not be synchronized
	// internally. The consumer must guarantee that it is used from only one thread at a time or is
	// synchronized by some other mechanism. Interrupts are still masked around critical sections.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
	// AllocatorCreateTrackAllocations records the size and alignment of every live allocation and
	// panics when Deallocate is called with a pointer, size or alignment that does not match.
	// It is always on when built with the debug_kheap tag.
	AllocatorCreateTrackAllocations
)

var createFlagsMapping = map[CreateFlags]string{
	AllocatorCreateExternallySynchronized: "AllocatorCreateExternallySynchronized",
	AllocatorCreateTrackAllocations:       "AllocatorCreateTrackAllocations",
}

func (f CreateFlags) String() string {
	var names []string
	for flag := AllocatorCreateExternallySynchronized; flag <= AllocatorCreateTrackAllocations; flag <<= 1 {
		if f&flag != 0 {
			names = append(names, createFlagsMapping[flag])
		}
	}

	return strings.Join(names, "|")
}

const (
	// DefaultMinSplitSize is the smallest usable size of a free block produced by splitting when
	// CreateOptions.MinSplitSize is left at zero
	DefaultMinSplitSize int = 8
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// MinSplitSize is the smallest usable size a free remainder may have. A block is only split
	// when the remainder left after the allocation can hold a header, a footer and this many bytes.
	// It must be a positive multiple of 8; zero selects DefaultMinSplitSize.
	MinSplitSize int
	// Interrupts masks interrupts around every critical section. Leave it nil when interrupt
	// handlers never allocate.
	Interrupts InterruptController
}

// New creates an allocator that owns region for the rest of its lifetime. The region's
// previous contents are overwritten with a single free block spanning the whole region.
// region must not be handed to any other allocator.
func New(logger *slog.Logger, region *arena.Arena, options CreateOptions) (*Allocator, error) {
	if region == nil {
		return nil, errors.Wrap(arena.ErrRegionTooSmall, "no region provided")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	minSplitSize := options.MinSplitSize
	if minSplitSize == 0 {
		minSplitSize = DefaultMinSplitSize
	}

	if minSplitSize < 0 || minSplitSize%memutils.WordSize != 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "CreateOptions.MinSplitSize must be a positive multiple of %d, but was %d", memutils.WordSize, minSplitSize)
	}

	if region.Size() < arena.Overhead+minSplitSize {
		return nil, errors.Wrapf(arena.ErrRegionTooSmall, "region of %d bytes cannot hold a block of %d usable bytes", region.Size(), minSplitSize)
	}

	interrupts := options.Interrupts
	if interrupts == nil {
		interrupts = noInterrupts{}
	}

	allocator := &Allocator{
		logger:       logger,
		mutex:        utils.OptionalMutex{UseMutex: options.Flags&AllocatorCreateExternallySynchronized == 0},
		interrupts:   interrupts,
		createFlags:  options.Flags,
		minSplitSize: minSplitSize,
		arena:        region,
		bins:         bins.NewIndex(region),
	}

	if options.Flags&AllocatorCreateTrackAllocations != 0 || memutils.DebugChecks {
		allocator.tracker = newAllocationTracker()
	}

	region.WriteFreeBlock(region.Start(), region.Size()-arena.Overhead, arena.NilOffset, arena.NilOffset)
	allocator.bins.Insert(region.Start())

	logger.Debug("Allocator::New",
		slog.Uint64("Base", uint64(region.Base())),
		slog.Int("Size", region.Size()),
		slog.Int("MinSplitSize", minSplitSize),
		slog.String("Flags", options.Flags.String()),
	)

	return allocator, nil
}
