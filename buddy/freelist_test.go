package buddy_test

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"

	"github.com/simutils/pagepool"
	"github.com/simutils/pagepool/buddy"
)

func TestFreeListInitSeeding(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))
	require.NoError(t, list.Validate())

	require.Equal(t, int64(2048), list.TotalPages())
	require.Equal(t, int64(2048), list.TrackedPages())
	require.Equal(t, int64(0), list.UntrackedPages())
	require.Equal(t, int64(2048), list.SumFreePages())
	require.Equal(t, 2, list.FreeBlockCount())
	require.Equal(t, 2, list.FreeBlocksAtOrder(pagepool.MaxOrder))
	require.True(t, list.IsEmpty())

	for order := 0; order < pagepool.MaxOrder; order++ {
		require.Equal(t, 0, list.FreeBlocksAtOrder(order))
	}
}

func TestFreeListInitRemainderUntracked(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2500))
	require.NoError(t, list.Validate())

	require.Equal(t, int64(2500), list.TotalPages())
	require.Equal(t, int64(2048), list.TrackedPages())
	require.Equal(t, int64(452), list.UntrackedPages())
	require.Equal(t, int64(2048), list.SumFreePages())
	require.Equal(t, 2, list.FreeBlockCount())
}

func TestFreeListInitRejectsEmptyRange(t *testing.T) {
	var list buddy.FreeList
	require.Error(t, list.Init(0))
	require.Error(t, list.Init(-5))
}

func TestFreeListAcquireSplitsCascade(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))

	block, err := list.Acquire(0)
	require.NoError(t, err)
	require.NoError(t, list.Validate())
	require.Equal(t, int64(0), block.Offset)
	require.Equal(t, int64(1), block.Pages)

	// Splitting the order-10 block at offset 0 leaves one free block at every
	// order 0..9, plus the untouched order-10 block at offset 1024.
	for order := 0; order < pagepool.MaxOrder; order++ {
		require.Equal(t, 1, list.FreeBlocksAtOrder(order), "order %d", order)
	}
	require.Equal(t, 1, list.FreeBlocksAtOrder(pagepool.MaxOrder))
	require.Equal(t, int64(2047), list.SumFreePages())
	require.False(t, list.IsEmpty())
}

func TestFreeListReleaseCascadesBackUp(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))

	block, err := list.Acquire(0)
	require.NoError(t, err)

	require.NoError(t, list.Release(block.Offset, 0))
	require.NoError(t, list.Validate())

	// The freed page merges with its buddy at every order on the way up,
	// restoring the original two-block state.
	for order := 0; order < pagepool.MaxOrder; order++ {
		require.Equal(t, 0, list.FreeBlocksAtOrder(order), "order %d", order)
	}
	require.Equal(t, 2, list.FreeBlocksAtOrder(pagepool.MaxOrder))
	require.Equal(t, int64(2048), list.SumFreePages())
	require.True(t, list.IsEmpty())
}

func TestFreeListCoalesceEitherReleaseOrder(t *testing.T) {
	for _, firstLeft := range []bool{true, false} {
		var list buddy.FreeList
		require.NoError(t, list.Init(1024))

		left, err := list.Acquire(0)
		require.NoError(t, err)
		right, err := list.Acquire(0)
		require.NoError(t, err)
		require.Equal(t, int64(0), left.Offset)
		require.Equal(t, int64(1), right.Offset)

		if firstLeft {
			require.NoError(t, list.Release(left.Offset, 0))
			require.NoError(t, list.Release(right.Offset, 0))
		} else {
			require.NoError(t, list.Release(right.Offset, 0))
			require.NoError(t, list.Release(left.Offset, 0))
		}

		require.NoError(t, list.Validate())
		require.True(t, list.IsEmpty())
		require.Equal(t, 1, list.FreeBlocksAtOrder(pagepool.MaxOrder))
	}
}

func TestFreeListNoMergeWithAllocatedBuddy(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(1024))

	left, err := list.Acquire(0)
	require.NoError(t, err)
	right, err := list.Acquire(0)
	require.NoError(t, err)

	// Only the right half of the order-0 pair comes back; its buddy is still
	// allocated, so it must stay un-merged at order 0.
	require.NoError(t, list.Release(right.Offset, 0))
	require.NoError(t, list.Validate())
	require.Equal(t, 1, list.FreeBlocksAtOrder(0))
	require.Equal(t, 0, list.FreeBlocksAtOrder(1))

	require.NoError(t, list.Release(left.Offset, 0))
	require.True(t, list.IsEmpty())
}

func TestFreeListExhaustion(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(1024))

	block, err := list.Acquire(pagepool.MaxOrder)
	require.NoError(t, err)
	require.Equal(t, int64(0), block.Offset)

	_, err = list.Acquire(0)
	require.ErrorIs(t, err, pagepool.OutOfPagesError)

	require.NoError(t, list.Release(block.Offset, pagepool.MaxOrder))
	_, err = list.Acquire(0)
	require.NoError(t, err)
}

func TestFreeListRejectsBadArguments(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))

	_, err := list.Acquire(-1)
	require.Error(t, err)
	_, err = list.Acquire(pagepool.MaxOrder + 1)
	require.Error(t, err)

	require.Error(t, list.Release(0, -1))
	require.Error(t, list.Release(0, pagepool.MaxOrder+1))

	// Offset 1 is not aligned to an order-1 block.
	require.ErrorIs(t, list.Release(1, 1), pagepool.AlignmentError)

	// Beyond the tracked range.
	require.Error(t, list.Release(2048, 0))
	require.Error(t, list.Release(-1, 0))
}

func TestFreeListConservation(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(4096))

	var held []buddy.PageBlock
	var allocated int64

	check := func() {
		require.NoError(t, list.Validate())
		require.Equal(t, list.TrackedPages(), list.SumFreePages()+allocated)
	}

	for _, order := range []int{0, 3, 0, 5, 1, 10, 2, 0, 7} {
		block, err := list.Acquire(order)
		require.NoError(t, err)
		require.Equal(t, pagepool.PagesForOrder(order), block.Pages)
		held = append(held, block)
		allocated += block.Pages
		check()
	}

	// Release out of acquisition order.
	for _, i := range []int{4, 0, 8, 2, 6, 1, 5, 3, 7} {
		order, err := pagepool.OrderForPages(held[i].Pages)
		require.NoError(t, err)
		require.NoError(t, list.Release(held[i].Offset, order))
		allocated -= held[i].Pages
		check()
	}

	require.True(t, list.IsEmpty())
	require.Equal(t, 4, list.FreeBlocksAtOrder(pagepool.MaxOrder))
}

func TestFreeListClear(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))

	_, err := list.Acquire(4)
	require.NoError(t, err)
	require.False(t, list.IsEmpty())

	list.Clear()
	require.NoError(t, list.Validate())
	require.True(t, list.IsEmpty())
	require.Equal(t, 2, list.FreeBlocksAtOrder(pagepool.MaxOrder))
}

func TestFreeListDetailedStatistics(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))

	_, err := list.Acquire(0)
	require.NoError(t, err)

	var stats pagepool.DetailedStatistics
	stats.Clear()
	list.AddDetailedStatistics(&stats)

	require.Equal(t, 11, stats.FreeBlockCount)
	require.Equal(t, int64(1), stats.FreeBlockPagesMin)
	require.Equal(t, int64(1024), stats.FreeBlockPagesMax)
	for order := 0; order < pagepool.MaxOrder; order++ {
		require.Equal(t, 1, stats.FreeBlocksPerOrder[order])
	}
	require.Equal(t, 1, stats.FreeBlocksPerOrder[pagepool.MaxOrder])
}

func TestFreeListPrintDetailedMap(t *testing.T) {
	var list buddy.FreeList
	require.NoError(t, list.Init(2048))

	_, err := list.Acquire(0)
	require.NoError(t, err)

	writer := jwriter.NewWriter()
	list.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var dump struct {
		TotalPages int64 `json:"TotalPages"`
		FreePages  int64 `json:"FreePages"`
		FreeBlocks int   `json:"FreeBlocks"`
		Orders     []struct {
			Order      int `json:"Order"`
			BlockPages int `json:"BlockPages"`
			FreeBlocks []struct {
				Offset int64 `json:"Offset"`
			} `json:"FreeBlocks"`
		} `json:"Orders"`
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &dump))

	require.Equal(t, int64(2048), dump.TotalPages)
	require.Equal(t, int64(2047), dump.FreePages)
	require.Equal(t, 11, dump.FreeBlocks)
	require.Len(t, dump.Orders, pagepool.NumOrders)
	require.Equal(t, int64(1024), dump.Orders[pagepool.MaxOrder].FreeBlocks[0].Offset)
	require.Equal(t, int64(512), dump.Orders[9].FreeBlocks[0].Offset)
}
