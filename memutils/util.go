package memutils

import (
	"math"

	cerrors "github.com/cockroachdb/errors"
)

const (
	// WordSize is the granularity of every block boundary and every block size in the heap
	WordSize = 8
)

type Number interface {
	~int | ~uint | ~uint64 | ~uintptr
}

// CheckPow2 returns an error wrapping PowerOfTwoError if number is zero or not a power of two
func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// CheckedAlignUp aligns a non-negative size up to alignment, returning OverflowError
// rather than wrapping around
func CheckedAlignUp(value int, alignment uint) (int, error) {
	if value < 0 {
		return 0, cerrors.Wrapf(OverflowError, "cannot align negative value %d", value)
	}
	if alignment == 0 || alignment > math.MaxInt || value > math.MaxInt-int(alignment-1) {
		return 0, cerrors.Wrapf(OverflowError, "aligning %d to %d", value, alignment)
	}

	return AlignUp(value, alignment), nil
}

// AlignAddressUp aligns an address up to alignment, returning OverflowError if the
// result would wrap past the top of the address space
func AlignAddressUp(address uintptr, alignment uintptr) (uintptr, error) {
	mask := alignment - 1
	if address+mask < address {
		return 0, cerrors.Wrapf(OverflowError, "aligning address %#x to %d", address, alignment)
	}

	return (address + mask) &^ mask, nil
}

// AlignAddressDown aligns an address down to alignment
func AlignAddressDown(address uintptr, alignment uintptr) uintptr {
	return address &^ (alignment - 1)
}

// CheckedAdd adds two non-negative sizes, returning OverflowError if the sum cannot be represented
func CheckedAdd(left, right int) (int, error) {
	if right > math.MaxInt-left {
		return 0, cerrors.Wrapf(OverflowError, "%d + %d", left, right)
	}

	return left + right, nil
}
