package memutils_test

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pikern/kheap/memutils"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(uint(1), "alignment"))
	require.NoError(t, memutils.CheckPow2(uint(64), "alignment"))
	require.NoError(t, memutils.CheckPow2(uintptr(1<<40), "alignment"))

	err := memutils.CheckPow2(uint(0), "alignment")
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))

	err = memutils.CheckPow2(uint(24), "alignment")
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
	require.Contains(t, err.Error(), "alignment is 24")
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, memutils.AlignUp(0, 8))
	require.Equal(t, 8, memutils.AlignUp(1, 8))
	require.Equal(t, 8, memutils.AlignUp(8, 8))
	require.Equal(t, 64, memutils.AlignUp(33, 64))
}

func TestCheckedAlignUp(t *testing.T) {
	value, err := memutils.CheckedAlignUp(13, 8)
	require.NoError(t, err)
	require.Equal(t, 16, value)

	_, err = memutils.CheckedAlignUp(math.MaxInt-3, 8)
	require.True(t, errors.Is(err, memutils.OverflowError))

	_, err = memutils.CheckedAlignUp(-1, 8)
	require.True(t, errors.Is(err, memutils.OverflowError))
}

func TestAlignAddress(t *testing.T) {
	address, err := memutils.AlignAddressUp(0x1001, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x2000), address)

	address, err = memutils.AlignAddressUp(0x2000, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x2000), address)

	_, err = memutils.AlignAddressUp(^uintptr(0)-2, 8)
	require.True(t, errors.Is(err, memutils.OverflowError))

	require.Equal(t, uintptr(0x1000), memutils.AlignAddressDown(0x1fff, 0x1000))
}

func TestCheckedAdd(t *testing.T) {
	sum, err := memutils.CheckedAdd(40, 2)
	require.NoError(t, err)
	require.Equal(t, 42, sum)

	_, err = memutils.CheckedAdd(math.MaxInt, 1)
	require.True(t, errors.Is(err, memutils.OverflowError))
}
