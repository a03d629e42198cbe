// Package pagepool provides the shared substrate for a page-granular buddy allocator: order
// arithmetic, occupancy statistics, sentinel errors, and debug-build validation hooks. The
// allocator itself lives in the buddy and pool packages.
package pagepool

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

const (
	// MaxOrder is the largest buddy order. Blocks of this order are never coalesced further
	// because no larger order exists.
	MaxOrder = 10
	// NumOrders is the number of free lists an engine maintains, one per order 0..MaxOrder.
	NumOrders = MaxOrder + 1
	// MaxBlockPages is the size in pages of a MaxOrder block, and so the largest contiguous
	// extent a single allocation can cover.
	MaxBlockPages = 1 << MaxOrder
)

type Number interface {
	~int | ~uint | ~int64 | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// OrderForPages returns the smallest order whose block size is at least npages. Requests are
// rounded up to the next power of two, so any surplus pages are unusable until the whole block
// is freed again.
func OrderForPages(npages int64) (int, error) {
	if npages < 1 || npages > MaxBlockPages {
		return 0, cerrors.Wrapf(PageCountError, "requested %d pages, supported range is [1, %d]", npages, MaxBlockPages)
	}
	return bits.Len64(uint64(npages - 1)), nil
}

// PagesForOrder returns the size in pages of a block at the given order.
func PagesForOrder(order int) int64 {
	return int64(1) << order
}

func AlignDown(value uint64, alignment uint64) uint64 {
	return value &^ (alignment - 1)
}
