package bins

import (
	"math"
	"math/bits"
)

const (
	// NumBins is the number of size classes. Class 0 holds blocks of up to 8 usable bytes,
	// class k holds blocks in (2^(k+2), 2^(k+3)], and the last class also holds everything larger.
	NumBins = 30

	minClassShift = 3
)

// Classify returns the size class of a block with the given usable size. It is monotonic:
// a larger size never maps to a smaller class.
func Classify(size int) int {
	if size <= 1<<minClassShift {
		return 0
	}

	class := bits.Len64(uint64(size-1)) - minClassShift
	if class >= NumBins {
		return NumBins - 1
	}

	return class
}

// ClassFloor returns the smallest usable size that Classify maps to class
func ClassFloor(class int) int {
	if class <= 0 {
		return 1
	}

	return 1<<(class+minClassShift-1) + 1
}

// ClassCeiling returns the largest usable size that Classify maps to class
func ClassCeiling(class int) int {
	if class >= NumBins-1 {
		return math.MaxInt
	}

	return 1 << (class + minClassShift)
}
