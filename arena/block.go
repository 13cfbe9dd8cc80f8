package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/memutils"
)

// Block is the decoded form of one block's metadata. It is a tagged variant over State: Next
// and Prev are only meaningful for free blocks, Padding is only non-zero for allocated blocks.
//
//	free:      [header | data (UsableSize bytes) | footer]
//	allocated: [padding | header | data (UsableSize bytes) | footer]
type Block struct {
	Start      int
	State      State
	UsableSize int
	Padding    int
	Next       int
	Prev       int
}

func (b Block) IsFree() bool { return b.State == StateFree }

// HeaderOffset returns the offset of the block's header
func (b Block) HeaderOffset() int { return b.Start + b.Padding }

// DataOffset returns the offset of the first byte available to the caller
func (b Block) DataOffset() int { return b.HeaderOffset() + HeaderSize }

// FooterOffset returns the offset of the block's footer
func (b Block) FooterOffset() int { return b.DataOffset() + b.UsableSize }

// End returns the offset one past the block's footer, which is the start of the next block
func (b Block) End() int { return b.FooterOffset() + FooterSize }

// TotalLen returns padding + header + usable size + footer
func (b Block) TotalLen() int { return b.End() - b.Start }

func (a *Arena) hasWords(offset, n int) bool {
	return (offset-a.start)%memutils.WordSize == 0 && a.Contains(offset, n)
}

// BlockAt decodes the block whose low boundary is at start
func (a *Arena) BlockAt(start int) (Block, error) {
	if !a.hasWords(start, memutils.WordSize) {
		return Block{}, errors.Wrapf(ErrOutOfBounds, "block start %d", start)
	}

	padding := 0
	tag := Tag(a.word(start))
	if tag.State() == StatePadding {
		padding = int(tag.Value())
		if padding == 0 || padding%memutils.WordSize != 0 {
			return Block{}, errors.Wrapf(ErrCorrupt, "block at %d has padding marker %d", start, padding)
		}
	}

	block, err := a.decodeHeader(start, padding)
	if err != nil {
		return Block{}, err
	}

	if block.Padding != padding {
		return Block{}, errors.Wrapf(ErrCorrupt, "block at %d has padding marker %d but header padding %d", start, padding, block.Padding)
	}

	return block, a.checkFooter(block)
}

// BlockAtData decodes the allocated block whose data region begins at dataOffset
func (a *Arena) BlockAtData(dataOffset int) (Block, error) {
	headerOffset := dataOffset - HeaderSize
	if !a.hasWords(headerOffset, HeaderSize) {
		return Block{}, errors.Wrapf(ErrOutOfBounds, "data offset %d has no room for a header", dataOffset)
	}

	tag := Tag(a.word(headerOffset))
	if tag.State() != StateAllocated {
		return Block{}, errors.Wrapf(ErrCorrupt, "data offset %d does not belong to an allocated block (header state %s)", dataOffset, tag.State())
	}

	padding := int(a.word(headerOffset + 2*memutils.WordSize))
	if padding < 0 || padding > headerOffset-a.start {
		return Block{}, errors.Wrapf(ErrCorrupt, "block header at %d has padding %d", headerOffset, padding)
	}

	block, err := a.BlockAt(headerOffset - padding)
	if err != nil {
		return Block{}, err
	}
	if block.HeaderOffset() != headerOffset {
		return Block{}, errors.Wrapf(ErrCorrupt, "block header at %d could not be recovered from its start", headerOffset)
	}

	return block, nil
}

// BlockEndingAt decodes the block whose footer ends at end by reading backward from the footer
func (a *Arena) BlockEndingAt(end int) (Block, error) {
	footerOffset := end - FooterSize
	if !a.hasWords(footerOffset, FooterSize) {
		return Block{}, errors.Wrapf(ErrOutOfBounds, "no footer ends at %d", end)
	}

	usable := int(a.word(footerOffset))
	tag := Tag(a.word(footerOffset + memutils.WordSize))
	padding := int(tag.Value())

	if usable < 0 || padding < 0 || usable > footerOffset-a.start || padding > footerOffset-a.start-usable-HeaderSize {
		return Block{}, errors.Wrapf(ErrCorrupt, "footer at %d describes a block outside of the arena", footerOffset)
	}

	block, err := a.BlockAt(footerOffset - usable - HeaderSize - padding)
	if err != nil {
		return Block{}, err
	}
	if block.End() != end {
		return Block{}, errors.Wrapf(ErrCorrupt, "block recovered from footer at %d ends at %d", footerOffset, block.End())
	}

	return block, nil
}

func (a *Arena) decodeHeader(start, padding int) (Block, error) {
	headerOffset := start + padding
	if !a.hasWords(headerOffset, Overhead) {
		return Block{}, errors.Wrapf(ErrOutOfBounds, "block header at %d", headerOffset)
	}

	tag := Tag(a.word(headerOffset))
	if tag.Value() != headerMagic {
		return Block{}, errors.Wrapf(ErrCorrupt, "block header at %d has bad magic %#x", headerOffset, tag.Value())
	}

	block := Block{
		Start:      start,
		State:      tag.State(),
		UsableSize: int(a.word(headerOffset + memutils.WordSize)),
		Next:       NilOffset,
		Prev:       NilOffset,
	}

	switch block.State {
	case StateFree:
		block.Next = decodeOffset(a.word(headerOffset + 2*memutils.WordSize))
		block.Prev = decodeOffset(a.word(headerOffset + 3*memutils.WordSize))
	case StateAllocated:
		block.Padding = int(a.word(headerOffset + 2*memutils.WordSize))
	default:
		return Block{}, errors.Wrapf(ErrCorrupt, "block header at %d has state %s", headerOffset, block.State)
	}

	if block.UsableSize < 0 || block.UsableSize%memutils.WordSize != 0 ||
		block.UsableSize > a.end-headerOffset-Overhead {
		return Block{}, errors.Wrapf(ErrCorrupt, "block header at %d has usable size %d", headerOffset, block.UsableSize)
	}

	return block, nil
}

func (a *Arena) checkFooter(block Block) error {
	footerOffset := block.FooterOffset()
	usable := int(a.word(footerOffset))
	tag := Tag(a.word(footerOffset + memutils.WordSize))

	if usable != block.UsableSize || tag.State() != block.State || int(tag.Value()) != block.Padding {
		return errors.Wrapf(ErrCorrupt,
			"block at %d: header says (%s, size %d, padding %d) but footer says (%s, size %d, padding %d)",
			block.Start, block.State, block.UsableSize, block.Padding, tag.State(), usable, tag.Value())
	}

	return nil
}

// StateAt returns the state stored in the first word of the block starting at start, without
// decoding the rest of the block. A padded allocated block reports StatePadding.
func (a *Arena) StateAt(start int) State {
	if !a.hasWords(start, memutils.WordSize) {
		return StateInvalid
	}

	return Tag(a.word(start)).State()
}

// WriteFreeBlock writes the header and footer of a free block that spans
// [start, start+Overhead+usable) and returns its decoded form
func (a *Arena) WriteFreeBlock(start, usable, next, prev int) Block {
	block := Block{
		Start:      start,
		State:      StateFree,
		UsableSize: usable,
		Next:       next,
		Prev:       prev,
	}

	header := block.HeaderOffset()
	a.putWord(header, uint64(MakeTag(StateFree, headerMagic)))
	a.putWord(header+memutils.WordSize, uint64(usable))
	a.putWord(header+2*memutils.WordSize, encodeOffset(next))
	a.putWord(header+3*memutils.WordSize, encodeOffset(prev))
	a.writeFooter(block)

	return block
}

// WriteAllocatedBlock writes the padding marker, header and footer of an allocated block that
// spans [start, start+padding+Overhead+usable) and returns its decoded form
func (a *Arena) WriteAllocatedBlock(start, padding, usable int) Block {
	if padding < 0 || padding > MaxPadding || padding%memutils.WordSize != 0 {
		panic(errors.AssertionFailedf("invalid padding %d for block at %d", padding, start))
	}

	block := Block{
		Start:      start,
		State:      StateAllocated,
		UsableSize: usable,
		Padding:    padding,
		Next:       NilOffset,
		Prev:       NilOffset,
	}

	if padding > 0 {
		a.putWord(start, uint64(MakeTag(StatePadding, uint64(padding))))
	}

	header := block.HeaderOffset()
	a.putWord(header, uint64(MakeTag(StateAllocated, headerMagic)))
	a.putWord(header+memutils.WordSize, uint64(usable))
	a.putWord(header+2*memutils.WordSize, uint64(padding))
	a.putWord(header+3*memutils.WordSize, 0)
	a.writeFooter(block)

	return block
}

func (a *Arena) writeFooter(block Block) {
	footer := block.FooterOffset()
	a.putWord(footer, uint64(block.UsableSize))
	a.putWord(footer+memutils.WordSize, uint64(MakeTag(block.State, uint64(block.Padding))))
}

// FreeLinks returns the intrusive bin links of the free block at start
func (a *Arena) FreeLinks(start int) (next, prev int) {
	return decodeOffset(a.word(start + 2*memutils.WordSize)), decodeOffset(a.word(start + 3*memutils.WordSize))
}

// SetNext updates the next link of the free block at start
func (a *Arena) SetNext(start, next int) {
	a.putWord(start+2*memutils.WordSize, encodeOffset(next))
}

// SetPrev updates the previous link of the free block at start
func (a *Arena) SetPrev(start, prev int) {
	a.putWord(start+3*memutils.WordSize, encodeOffset(prev))
}

// UsableSizeAt returns the usable size recorded in the header of the unpadded block at start
func (a *Arena) UsableSizeAt(start int) int {
	return int(a.word(start + memutils.WordSize))
}

// PaddingFor returns the smallest padding that places the data region of a block starting at
// start on a multiple of alignment. Alignments below the word size are raised to the word size.
func (a *Arena) PaddingFor(start int, alignment uint) (int, error) {
	if alignment < memutils.WordSize {
		alignment = memutils.WordSize
	}

	dataAddress := a.base + uintptr(start) + HeaderSize
	if dataAddress < a.base {
		return 0, errors.Wrapf(memutils.OverflowError, "block at %d", start)
	}

	aligned, err := memutils.AlignAddressUp(dataAddress, uintptr(alignment))
	if err != nil {
		return 0, err
	}

	padding := aligned - dataAddress
	if padding > MaxPadding || padding > uintptr(a.end) {
		return 0, errors.Wrapf(memutils.OverflowError, "padding %d for block at %d", padding, start)
	}

	return int(padding), nil
}

// Walk calls visit for every block from Start to End in address order. It stops at the first
// error, including metadata that does not tile the arena.
func (a *Arena) Walk(visit func(block Block) error) error {
	for offset := a.start; offset < a.end; {
		block, err := a.BlockAt(offset)
		if err != nil {
			return err
		}

		err = visit(block)
		if err != nil {
			return err
		}

		offset = block.End()
	}

	return nil
}
