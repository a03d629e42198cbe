package pagepool_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simutils/pagepool"
)

func TestDetailedStatisticsAccumulate(t *testing.T) {
	var stats pagepool.DetailedStatistics
	stats.Clear()

	require.Equal(t, int64(math.MaxInt64), stats.FreeBlockPagesMin)
	require.Equal(t, int64(0), stats.FreeBlockPagesMax)

	stats.AddFreeBlock(0, 1)
	stats.AddFreeBlock(10, 1024)
	stats.AddFreeBlock(10, 1024)

	require.Equal(t, 3, stats.FreeBlockCount)
	require.Equal(t, int64(1), stats.FreeBlockPagesMin)
	require.Equal(t, int64(1024), stats.FreeBlockPagesMax)
	require.Equal(t, 1, stats.FreeBlocksPerOrder[0])
	require.Equal(t, 2, stats.FreeBlocksPerOrder[pagepool.MaxOrder])

	var other pagepool.DetailedStatistics
	other.Clear()
	other.Statistics = pagepool.Statistics{
		PoolCount:       1,
		AllocationCount: 2,
		TotalPages:      2048,
		AllocatedPages:  16,
	}
	other.AddFreeBlock(4, 16)

	stats.AddDetailedStatistics(&other)
	require.Equal(t, 1, stats.PoolCount)
	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 4, stats.FreeBlockCount)
	require.Equal(t, 1, stats.FreeBlocksPerOrder[4])
}
