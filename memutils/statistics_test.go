package memutils_test

import (
	"math"
	"testing"

	"github.com/pikern/kheap/memutils"
	"github.com/stretchr/testify/require"
)

func TestDetailedStatisticsAccumulate(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()

	require.Equal(t, math.MaxInt, stats.AllocationSizeMin)
	require.Equal(t, math.MaxInt, stats.FreeBlockSizeMin)

	stats.AddAllocation(16)
	stats.AddAllocation(128)
	stats.AddFreeBlock(4000)
	stats.AddOverhead(144)

	var other memutils.DetailedStatistics
	other.Clear()
	other.ArenaCount = 1
	other.ArenaBytes = 4096
	other.AddFreeBlock(8)

	stats.AddDetailedStatistics(&other)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			ArenaCount:      1,
			AllocationCount: 2,
			ArenaBytes:      4096,
			AllocationBytes: 144,
		},
		FreeBlockCount:    2,
		FreeBytes:         4008,
		OverheadBytes:     144,
		AllocationSizeMin: 16,
		AllocationSizeMax: 128,
		FreeBlockSizeMin:  8,
		FreeBlockSizeMax:  4000,
	}, stats)
}
