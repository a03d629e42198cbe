// Package buddy implements the buddy free-list engine at the heart of the page allocator: eleven
// free lists ordered by ascending page offset, split-on-demand acquisition, and coalesce-on-free
// release with upward cascade.
package buddy

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/simutils/pagepool"
)

// PageBlock is the value handed to a caller when a block is acquired. The backing free-list
// record is consumed in the process, so a PageBlock carries no links back into the engine.
type PageBlock struct {
	Offset int64
	Pages  int64
}

// FreeList maintains one free list per order 0..MaxOrder for a single contiguous page range.
// Order k holds blocks of exactly 2^k pages, kept in ascending offset order so that buddy
// adjacency can be detected by inspecting a single neighbor after insertion.
//
// The engine is single-threaded by contract. Callers serialize access externally.
type FreeList struct {
	listHeads [pagepool.NumOrders]*block

	totalPages int64
	freePages  int64
	freeBlocks int
}

var _ pagepool.Validatable = &FreeList{}

// Init seeds the engine for a range of totalPages pages. One MaxOrder block is created for every
// complete MaxBlockPages run at offsets 0, 1024, 2048, and so on; orders 0..9 start empty. Any
// remainder pages are not represented by any block and are never handed out - see
// UntrackedPages. Init may be called again to reset the engine to the fully free state.
func (l *FreeList) Init(totalPages int64) error {
	if totalPages <= 0 {
		return cerrors.Errorf("total page count must be positive, got %d", totalPages)
	}

	l.totalPages = totalPages
	l.reseed()
	return nil
}

// Clear instantly returns the engine to the fully free state it had after Init.
func (l *FreeList) Clear() {
	l.reseed()
}

func (l *FreeList) reseed() {
	for order := range l.listHeads {
		for b := l.listHeads[order]; b != nil; {
			next := b.nextFree
			recycleBlock(b)
			b = next
		}
		l.listHeads[order] = nil
	}

	l.freePages = 0
	l.freeBlocks = 0

	var tail *block
	seedCount := l.totalPages / pagepool.MaxBlockPages
	for i := int64(0); i < seedCount; i++ {
		b := newBlock(i*pagepool.MaxBlockPages, pagepool.MaxBlockPages)
		if tail == nil {
			l.listHeads[pagepool.MaxOrder] = b
		} else {
			tail.nextFree = b
			b.prevFree = tail
		}
		tail = b

		l.freePages += pagepool.MaxBlockPages
		l.freeBlocks++
	}
}

// TotalPages returns the page count the engine was initialized with, including any untracked
// remainder.
func (l *FreeList) TotalPages() int64 {
	return l.totalPages
}

// TrackedPages returns the number of pages actually represented by blocks: the largest multiple
// of MaxBlockPages that fits in the total.
func (l *FreeList) TrackedPages() int64 {
	return (l.totalPages / pagepool.MaxBlockPages) * pagepool.MaxBlockPages
}

// UntrackedPages returns the trailing pages that no block ever covers. They are unusable for the
// lifetime of the engine.
func (l *FreeList) UntrackedPages() int64 {
	return l.totalPages - l.TrackedPages()
}

// SumFreePages returns the number of pages currently sitting on the free lists.
func (l *FreeList) SumFreePages() int64 {
	return l.freePages
}

// FreeBlockCount returns the number of free blocks across all orders.
func (l *FreeList) FreeBlockCount() int {
	return l.freeBlocks
}

// FreeBlocksAtOrder returns the number of free blocks on the given order's list.
func (l *FreeList) FreeBlocksAtOrder(order int) int {
	if order < 0 || order > pagepool.MaxOrder {
		return 0
	}

	count := 0
	for b := l.listHeads[order]; b != nil; b = b.nextFree {
		count++
	}
	return count
}

// IsEmpty returns true when every tracked page is free.
func (l *FreeList) IsEmpty() bool {
	return l.freePages == l.TrackedPages()
}

// Acquire detaches and returns a block of exactly 2^order pages. When the order's own list is
// empty, the nearest larger free block is split repeatedly: each split keeps the left half and
// reinserts the right half one order down. When no block at the requested order or above is
// free, the range is genuinely exhausted and OutOfPagesError is returned.
func (l *FreeList) Acquire(order int) (PageBlock, error) {
	if order < 0 || order > pagepool.MaxOrder {
		return PageBlock{}, cerrors.Errorf("order %d is outside the supported range [0, %d]", order, pagepool.MaxOrder)
	}

	pagepool.DebugValidate(l)

	foundOrder := -1
	for o := order; o <= pagepool.MaxOrder; o++ {
		if l.listHeads[o] != nil {
			foundOrder = o
			break
		}
	}

	if foundOrder < 0 {
		return PageBlock{}, cerrors.Wrapf(pagepool.OutOfPagesError, "no free block at order %d or above", order)
	}

	b := l.listHeads[foundOrder]
	l.detach(b, foundOrder)

	// Split down to the requested order. Every list strictly between order and foundOrder is
	// empty, or foundOrder would not have been the first hit.
	for foundOrder > order {
		foundOrder--
		half := b.pages / 2
		l.insertSorted(newBlock(b.offset+half, half), foundOrder)
		b.pages = half
	}

	acquired := PageBlock{Offset: b.offset, Pages: b.pages}
	recycleBlock(b)

	pagepool.DebugValidate(l)
	return acquired, nil
}

// Release returns a block of 2^order pages starting at the given page offset to the engine. The
// block is inserted into its order's list at the position that preserves ascending offset order,
// then merged with its buddy if the buddy is also free, cascading upward one order at a time.
// The cascade is bounded by MaxOrder; order-10 blocks are never merged further.
func (l *FreeList) Release(offset int64, order int) error {
	if order < 0 || order > pagepool.MaxOrder {
		return cerrors.Errorf("order %d is outside the supported range [0, %d]", order, pagepool.MaxOrder)
	}

	pages := pagepool.PagesForOrder(order)
	if offset < 0 || offset+pages > l.TrackedPages() {
		return cerrors.Errorf("block of %d pages at offset %d falls outside the tracked range of %d pages", pages, offset, l.TrackedPages())
	}
	if offset%pages != 0 {
		return cerrors.Wrapf(pagepool.AlignmentError, "offset %d is not aligned to the order-%d block size %d", offset, order, pages)
	}

	pagepool.DebugValidate(l)

	b := newBlock(offset, pages)
	for {
		l.insertSorted(b, order)

		if order == pagepool.MaxOrder {
			break
		}

		merged := l.coalesce(b, order)
		if merged == nil {
			break
		}

		b = merged
		order++
	}

	pagepool.DebugValidate(l)
	return nil
}

// coalesce attempts the single merge step for a block that was just inserted at the given order.
// The buddy pairing rule determines whether b is the left or right half of its pair; because the
// list is offset-ordered, only the immediate neighbor on the pairing side can be the buddy. On a
// merge both records are consumed and the synthesized double-size block is returned for the
// caller to carry one order up. A nil return means the buddy is still allocated, which is the
// expected steady state.
func (l *FreeList) coalesce(b *block, order int) *block {
	pairSpan := pagepool.PagesForOrder(order + 1)

	if b.offset%pairSpan == 0 {
		next := b.nextFree
		if next == nil || next.offset != b.offset+b.pages {
			return nil
		}

		l.detach(next, order)
		l.detach(b, order)
		merged := newBlock(b.offset, pairSpan)
		recycleBlock(next)
		recycleBlock(b)
		return merged
	}

	prev := b.prevFree
	if prev == nil || prev.offset != b.offset-b.pages {
		return nil
	}

	l.detach(prev, order)
	l.detach(b, order)
	merged := newBlock(prev.offset, pairSpan)
	recycleBlock(prev)
	recycleBlock(b)
	return merged
}

func (l *FreeList) insertSorted(b *block, order int) {
	head := l.listHeads[order]
	if head == nil || head.offset > b.offset {
		b.nextFree = head
		b.prevFree = nil
		if head != nil {
			head.prevFree = b
		}
		l.listHeads[order] = b
	} else {
		p := head
		for p.nextFree != nil && p.nextFree.offset < b.offset {
			p = p.nextFree
		}

		b.nextFree = p.nextFree
		b.prevFree = p
		if p.nextFree != nil {
			p.nextFree.prevFree = b
		}
		p.nextFree = b
	}

	l.freePages += b.pages
	l.freeBlocks++
}

func (l *FreeList) detach(b *block, order int) {
	if b.prevFree != nil {
		b.prevFree.nextFree = b.nextFree
	} else {
		l.listHeads[order] = b.nextFree
	}

	if b.nextFree != nil {
		b.nextFree.prevFree = b.prevFree
	}

	b.prevFree = nil
	b.nextFree = nil

	l.freePages -= b.pages
	l.freeBlocks--
}

// AddDetailedStatistics sums this engine's free-block layout into the provided statistics.
func (l *FreeList) AddDetailedStatistics(stats *pagepool.DetailedStatistics) {
	for order := 0; order <= pagepool.MaxOrder; order++ {
		for b := l.listHeads[order]; b != nil; b = b.nextFree {
			stats.AddFreeBlock(order, b.pages)
		}
	}
}
