package buddy

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/simutils/pagepool"
)

// Validate performs internal consistency checks on the free lists. When the engine is
// functioning correctly it should not be possible for this method to return an error, but it may
// assist in diagnosing issues with the implementation. It runs automatically at acquire and
// release boundaries in debug_page_pool builds.
func (l *FreeList) Validate() error {
	var countedPages int64
	var countedBlocks int

	for order := 0; order <= pagepool.MaxOrder; order++ {
		expectedPages := pagepool.PagesForOrder(order)
		var prev *block

		for b := l.listHeads[order]; b != nil; b = b.nextFree {
			if b.pages != expectedPages {
				return cerrors.Errorf("block at offset %d sits on the order-%d list but spans %d pages instead of %d", b.offset, order, b.pages, expectedPages)
			}

			if b.offset%expectedPages != 0 {
				return cerrors.Errorf("block at offset %d on the order-%d list is not aligned to its own size", b.offset, order)
			}

			if b.prevFree != prev {
				return cerrors.Errorf("block at offset %d on the order-%d list has a broken back reference", b.offset, order)
			}

			if prev != nil {
				if prev.offset >= b.offset {
					return cerrors.Errorf("order-%d list is not strictly ascending: offset %d follows offset %d", order, b.offset, prev.offset)
				}
				if prev.offset+prev.pages > b.offset {
					return cerrors.Errorf("blocks at offsets %d and %d on the order-%d list overlap", prev.offset, b.offset, order)
				}
			}

			if b.offset < 0 || b.offset+b.pages > l.TrackedPages() {
				return cerrors.Errorf("block at offset %d on the order-%d list falls outside the tracked range of %d pages", b.offset, order, l.TrackedPages())
			}

			countedPages += b.pages
			countedBlocks++
			prev = b
		}
	}

	if countedPages != l.freePages {
		return cerrors.Errorf("the engine reports %d free pages but the lists only added up to %d", l.freePages, countedPages)
	}

	if countedBlocks != l.freeBlocks {
		return cerrors.Errorf("the engine reports %d free blocks but the lists only added up to %d", l.freeBlocks, countedBlocks)
	}

	if countedPages > l.TrackedPages() {
		return cerrors.Errorf("the lists hold %d free pages, more than the %d tracked pages", countedPages, l.TrackedPages())
	}

	return nil
}
