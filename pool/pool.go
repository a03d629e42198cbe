// Package pool layers addressable memory pools and a pool registry over the buddy free-list
// engine. A Pool binds one engine to one contiguous physical address range and speaks in
// addresses and page counts; a Registry owns the ordered set of pools for a machine and routes
// requests by pool id.
package pool

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/simutils/pagepool"
	"github.com/simutils/pagepool/buddy"
)

// Pool manages allocation of physical page frames within a single contiguous address range.
// Addresses handed out are absolute: the page offset chosen by the engine plus the pool's start
// page, shifted by the page size.
//
// All methods are single-threaded by contract and must be serialized by the caller, typically a
// simulator's event loop.
type Pool struct {
	logger *slog.Logger

	pageShift  uint
	startPage  int64
	totalPages int64

	freeList buddy.FreeList
	live     allocationTracker
}

var _ pagepool.Validatable = &Pool{}

// New creates a Pool managing the address range [start, limit) with pages of 1<<pageShift bytes.
// The range must hold at least one complete page. Page counts are derived the way the range was
// supplied: start is truncated down to a page number and the page count to a whole number of
// pages.
func New(logger *slog.Logger, pageShift uint, start, limit uint64) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if limit <= start {
		return nil, cerrors.Errorf("address range [%#x, %#x) is empty or inverted", start, limit)
	}

	totalPages := int64((limit - start) >> pageShift)
	if totalPages <= 0 {
		return nil, cerrors.Errorf("address range [%#x, %#x) holds no complete pages at page shift %d", start, limit, pageShift)
	}

	p := &Pool{
		logger:     logger,
		pageShift:  pageShift,
		startPage:  int64(start >> pageShift),
		totalPages: totalPages,
	}

	if err := p.freeList.Init(totalPages); err != nil {
		return nil, err
	}

	p.live.Init()
	return p, nil
}

// Allocate hands out a contiguous run of at least npages pages and returns the absolute address
// of its first byte. npages must be in [1, MaxBlockPages]; the request is rounded up to the next
// power of two, so the surplus pages of an odd-sized request are unusable until the whole block
// is freed. Exhaustion surfaces as OutOfPagesError.
func (p *Pool) Allocate(npages int64) (uint64, error) {
	p.logger.Debug("Pool::Allocate", slog.Int64("npages", npages))

	order, err := pagepool.OrderForPages(npages)
	if err != nil {
		return 0, err
	}

	block, err := p.freeList.Acquire(order)
	if err != nil {
		return 0, cerrors.Wrapf(err, "allocating %d pages from the pool starting at page %d", npages, p.startPage)
	}

	p.live.Add(block.Offset, block.Pages)

	return uint64(p.startPage+block.Offset) << p.pageShift, nil
}

// Deallocate returns a single page to the pool. The contract is unit-page only: a caller
// releasing a multi-page allocation must decompose it into repeated single-page calls, there is
// no bulk-free path. addr must be page-aligned and inside the pool's tracked range. Freeing both
// halves of a buddy pair coalesces them back together, cascading as far up as order 10.
func (p *Pool) Deallocate(addr uint64, npages int64) error {
	p.logger.Debug("Pool::Deallocate", slog.Uint64("addr", addr), slog.Int64("npages", npages))

	if npages != 1 {
		return cerrors.Wrapf(pagepool.PageCountError, "deallocate accepts exactly one page, got %d", npages)
	}

	if pagepool.AlignDown(addr, p.PageSize()) != addr {
		return cerrors.Wrapf(pagepool.AlignmentError, "%#x is not aligned to the %d-byte page size", addr, p.PageSize())
	}

	offset := int64(addr>>p.pageShift) - p.startPage
	if offset < 0 || offset >= p.freeList.TrackedPages() {
		return cerrors.Errorf("address %#x does not belong to the pool's tracked range [%#x, %#x)",
			addr, p.StartAddr(), p.StartAddr()+uint64(p.freeList.TrackedPages())<<p.pageShift)
	}

	if err := p.freeList.Release(offset, 0); err != nil {
		return err
	}

	p.live.RemovePage(offset)
	return nil
}

// PageShift returns log2 of the page size in bytes.
func (p *Pool) PageShift() uint {
	return p.pageShift
}

// PageSize returns the page size in bytes.
func (p *Pool) PageSize() uint64 {
	return uint64(1) << p.pageShift
}

// StartPage returns the absolute page number of the first page in the pool.
func (p *Pool) StartPage() int64 {
	return p.startPage
}

// StartAddr returns the absolute address of the first byte in the pool.
func (p *Pool) StartAddr() uint64 {
	return uint64(p.startPage) << p.pageShift
}

// TotalPages returns the page count of the whole range, including any untracked tail.
func (p *Pool) TotalPages() int64 {
	return p.totalPages
}

// AllocatedPages returns the number of pages currently handed out, derived live from the
// engine's free-list totals.
func (p *Pool) AllocatedPages() int64 {
	return p.freeList.TrackedPages() - p.freeList.SumFreePages()
}

// FreePages returns TotalPages minus AllocatedPages. Note that this includes the untracked
// tail, which is counted free but can never be allocated.
func (p *Pool) FreePages() int64 {
	return p.totalPages - p.AllocatedPages()
}

// UntrackedPages returns the trailing pages of the range that the engine never represents. They
// exist in the capacity numbers but are unusable; see the buddy package for the seeding rule.
func (p *Pool) UntrackedPages() int64 {
	return p.freeList.UntrackedPages()
}

// TotalBytes returns the byte size of the whole range.
func (p *Pool) TotalBytes() uint64 {
	return uint64(p.totalPages) << p.pageShift
}

// AllocatedBytes returns the byte equivalent of AllocatedPages.
func (p *Pool) AllocatedBytes() uint64 {
	return uint64(p.AllocatedPages()) << p.pageShift
}

// FreeBytes returns the byte equivalent of FreePages.
func (p *Pool) FreeBytes() uint64 {
	return uint64(p.FreePages()) << p.pageShift
}

// AllocationCount returns the number of outstanding allocations the pool knows about.
func (p *Pool) AllocationCount() int {
	return p.live.Count()
}

// IsEmpty returns true when no pages are allocated.
func (p *Pool) IsEmpty() bool {
	return p.freeList.IsEmpty()
}

// Validate performs internal consistency checks on the underlying engine.
func (p *Pool) Validate() error {
	return p.freeList.Validate()
}

// LogUnreleasedAllocations writes an error-level log line for every allocation that is still
// outstanding and returns how many there were. Intended for teardown, when a live allocation
// means a guest leaked memory.
func (p *Pool) LogUnreleasedAllocations() int {
	return p.live.LogUnreleased(p.logger, p.startPage)
}

// AddStatistics sums this pool's occupancy into the provided statistics.
func (p *Pool) AddStatistics(stats *pagepool.Statistics) {
	stats.PoolCount++
	stats.AllocationCount += p.live.Count()
	stats.TotalPages += p.totalPages
	stats.AllocatedPages += p.AllocatedPages()
}

// AddDetailedStatistics sums this pool's occupancy and free-block layout into the provided
// statistics.
func (p *Pool) AddDetailedStatistics(stats *pagepool.DetailedStatistics) {
	p.AddStatistics(&stats.Statistics)
	p.freeList.AddDetailedStatistics(stats)
}
