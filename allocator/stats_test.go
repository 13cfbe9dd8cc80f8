package allocator_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pikern/kheap/allocator"
	"github.com/pikern/kheap/arena"
	"github.com/pikern/kheap/memutils"
	"github.com/stretchr/testify/require"
)

func TestDetailedStatistics(t *testing.T) {
	heap, _ := newTestHeap(t, 4096, allocator.CreateOptions{})

	var stats memutils.DetailedStatistics
	stats.Clear()
	heap.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			ArenaCount:      1,
			ArenaBytes:      4096,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		FreeBlockCount:    1,
		FreeBytes:         4048,
		OverheadBytes:     48,
		AllocationSizeMin: math.MaxInt,
		AllocationSizeMax: 0,
		FreeBlockSizeMin:  4048,
		FreeBlockSizeMax:  4048,
	}, stats)

	small, err := heap.Allocate(100, 8)
	require.NoError(t, err)
	padded, err := heap.Allocate(8, 256)
	require.NoError(t, err)

	stats.Clear()
	heap.AddDetailedStatistics(&stats)

	// small occupies [0, 152), padded starts at 152 with its data aligned to 256
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			ArenaCount:      1,
			ArenaBytes:      4096,
			AllocationCount: 2,
			AllocationBytes: 112,
		},
		FreeBlockCount:    1,
		FreeBytes:         4096 - 280 - 48,
		OverheadBytes:     3*48 + 72,
		AllocationSizeMin: 8,
		AllocationSizeMax: 104,
		FreeBlockSizeMin:  4096 - 280 - 48,
		FreeBlockSizeMax:  4096 - 280 - 48,
	}, stats)
	require.Equal(t, stats.ArenaBytes, stats.AllocationBytes+stats.FreeBytes+stats.OverheadBytes)

	var summary memutils.Statistics
	heap.AddStatistics(&summary)
	require.Equal(t, stats.Statistics, summary)

	heap.Deallocate(small, 100, 8)
	heap.Deallocate(padded, 8, 256)

	stats.Clear()
	heap.AddDetailedStatistics(&stats)
	require.Equal(t, 4048, stats.FreeBytes)
	require.Equal(t, 1, stats.FreeBlockCount)
}

type statsDocument struct {
	Total struct {
		ArenaCount       int
		ArenaBytes       int
		AllocationCount  int
		AllocationBytes  int
		UnusedRangeCount int
		UnusedBytes      int
		OverheadBytes    int
	}
	DetailedMap *struct {
		Base        string
		TotalBytes  int
		Allocations int
		Bins        []int
		Blocks      []struct {
			Offset  int
			Type    string
			Size    int
			Padding *int
		}
	}
}

func TestBuildStatsString(t *testing.T) {
	heap, _ := newTestHeap(t, 4096, allocator.CreateOptions{})

	pointer, err := heap.Allocate(16, 8)
	require.NoError(t, err)

	var document statsDocument
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(false)), &document))
	require.Nil(t, document.DetailedMap)
	require.Equal(t, 1, document.Total.ArenaCount)
	require.Equal(t, 4096, document.Total.ArenaBytes)
	require.Equal(t, 1, document.Total.AllocationCount)
	require.Equal(t, 16, document.Total.AllocationBytes)
	require.Equal(t, 1, document.Total.UnusedRangeCount)
	require.Equal(t, 4096-16-96, document.Total.UnusedBytes)
	require.Equal(t, 96, document.Total.OverheadBytes)

	document = statsDocument{}
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(true)), &document))
	require.NotNil(t, document.DetailedMap)
	require.Equal(t, "0x100000", document.DetailedMap.Base)
	require.Equal(t, 4096, document.DetailedMap.TotalBytes)
	require.Equal(t, 1, document.DetailedMap.Allocations)
	require.Len(t, document.DetailedMap.Bins, 30)
	require.Len(t, document.DetailedMap.Blocks, 2)

	require.Equal(t, 0, document.DetailedMap.Blocks[0].Offset)
	require.Equal(t, "Allocated", document.DetailedMap.Blocks[0].Type)
	require.Equal(t, 16, document.DetailedMap.Blocks[0].Size)
	require.NotNil(t, document.DetailedMap.Blocks[0].Padding)

	require.Equal(t, 64, document.DetailedMap.Blocks[1].Offset)
	require.Equal(t, "Free", document.DetailedMap.Blocks[1].Type)
	require.Nil(t, document.DetailedMap.Blocks[1].Padding)

	heap.Deallocate(pointer, 16, 8)
}

func TestPrintDetailedMap(t *testing.T) {
	heap, _ := newTestHeap(t, 4096, allocator.CreateOptions{})

	writer := jwriter.NewWriter()
	heap.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var document map[string]any
	require.NoError(t, json.Unmarshal(writer.Bytes(), &document))
	require.Equal(t, float64(1), document["UnusedRanges"])
	require.Equal(t, float64(4048), document["UnusedBytes"])
}

func TestDumpBins(t *testing.T) {
	heap, _ := newTestHeap(t, 4096, allocator.CreateOptions{})

	pointer, err := heap.Allocate(16, 8)
	require.NoError(t, err)

	dump := heap.DumpBins()
	require.True(t, strings.HasPrefix(dump, "heap at 0x100000: 4,096 bytes, 1 allocations, 1 free blocks, 3,984 free bytes\n"), dump)
	require.Contains(t, dump, "3,984 bytes")
	require.Contains(t, dump, "blocks:\n")
	require.Contains(t, dump, "Allocated")

	heap.Deallocate(pointer, 16, 8)
	require.Contains(t, heap.DumpBins(), "4,048 bytes")
}

func TestVisitAllRegionsStopsOnError(t *testing.T) {
	heap, _ := newTestHeap(t, 4096, allocator.CreateOptions{})

	for i := 0; i < 4; i++ {
		_, err := heap.Allocate(8, 8)
		require.NoError(t, err)
	}

	visited := 0
	stop := arena.ErrCorrupt
	err := heap.VisitAllRegions(func(block arena.Block) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	require.Equal(t, stop, err)
	require.Equal(t, 2, visited)
}
