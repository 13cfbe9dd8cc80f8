package arena

import "github.com/pikern/kheap/memutils"

// State identifies what a tag word describes
type State uint8

const (
	StateInvalid State = iota
	// StateFree marks the header or footer of a block that is linked into a bin
	StateFree
	// StateAllocated marks the header or footer of a block that has been handed to a caller
	StateAllocated
	// StatePadding marks the first word of an allocated block whose header was moved up to
	// satisfy an alignment request. The tag value is the padding in bytes.
	StatePadding
)

var stateMapping = map[State]string{
	StateInvalid:   "Invalid",
	StateFree:      "Free",
	StateAllocated: "Allocated",
	StatePadding:   "Padding",
}

func (s State) String() string {
	return stateMapping[s]
}

// Tag is a metadata word: the low 8 bits are a State and the remaining 56 bits are a value
// whose meaning depends on where the tag is stored
type Tag uint64

func MakeTag(state State, value uint64) Tag {
	return Tag(value<<8 | uint64(state))
}

func (t Tag) State() State {
	return State(t & 0xff)
}

func (t Tag) Value() uint64 {
	return uint64(t) >> 8
}

const (
	// HeaderSize is the size of the metadata at the low boundary of every block (after padding).
	//
	//	word 0: Tag{Free|Allocated, headerMagic}
	//	word 1: usable size
	//	word 2: Free: next block in the bin | Allocated: padding
	//	word 3: Free: previous block in the bin | Allocated: zero
	HeaderSize = 4 * memutils.WordSize
	// FooterSize is the size of the metadata at the high boundary of every block.
	//
	//	word 0: usable size
	//	word 1: Tag{Free|Allocated, padding}
	FooterSize = 2 * memutils.WordSize
	// Overhead is the metadata cost of a single block without padding
	Overhead = HeaderSize + FooterSize

	// MaxPadding is the largest padding that fits in a tag value
	MaxPadding = 1<<56 - 1

	headerMagic uint64 = 0x6b68656170 // "kheap"
)

func encodeOffset(offset int) uint64 {
	return uint64(int64(offset))
}

func decodeOffset(word uint64) int {
	return int(int64(word))
}
