package buddy

import "sync"

var blockAllocator = sync.Pool{
	New: func() any {
		return &block{}
	},
}

// block is a free extent descriptor. A block exists only while it sits on one of the engine's
// free lists; acquiring it detaches the record and hands the caller a PageBlock value instead,
// so a record is always owned by exactly one list or by nobody.
type block struct {
	offset int64
	pages  int64

	prevFree *block
	nextFree *block
}

func newBlock(offset, pages int64) *block {
	b := blockAllocator.Get().(*block)
	b.offset = offset
	b.pages = pages
	b.prevFree = nil
	b.nextFree = nil
	return b
}

func recycleBlock(b *block) {
	b.prevFree = nil
	b.nextFree = nil
	blockAllocator.Put(b)
}
