package pool

import (
	"sort"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"

	"github.com/simutils/pagepool"
)

// AddrRange describes one contiguous physical address range, end-exclusive.
type AddrRange struct {
	Start uint64
	End   uint64
}

// Size returns the byte length of the range.
func (r AddrRange) Size() uint64 {
	return r.End - r.Start
}

// Registry owns the ordered set of memory pools for a machine, one per disjoint address range,
// and routes allocation requests to the pool the caller names. Pool ids are positions in the
// populate order and stay stable for the registry's lifetime.
type Registry struct {
	logger    *slog.Logger
	pageShift uint
	pools     []*Pool
}

// NewRegistry creates an empty registry whose pools will all share the given page shift.
func NewRegistry(logger *slog.Logger, pageShift uint) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:    logger,
		pageShift: pageShift,
	}
}

// Populate builds one pool per range, appended in input order, so that the pool id of a range is
// its index in the input. The ranges must be non-empty and mutually disjoint. Populate may only
// be called on an empty registry; restoring a checkpoint replaces the pool set wholesale
// instead.
func (r *Registry) Populate(ranges []AddrRange) error {
	if len(r.pools) != 0 {
		return cerrors.Errorf("registry already holds %d pools", len(r.pools))
	}

	sorted := slices.Clone(ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return cerrors.Errorf("address ranges [%#x, %#x) and [%#x, %#x) overlap",
				sorted[i-1].Start, sorted[i-1].End, sorted[i].Start, sorted[i].End)
		}
	}

	pools := make([]*Pool, 0, len(ranges))
	for _, rng := range ranges {
		p, err := New(r.logger, r.pageShift, rng.Start, rng.End)
		if err != nil {
			return cerrors.Wrapf(err, "populating pool %d", len(pools))
		}
		pools = append(pools, p)
	}

	r.pools = pools
	r.logger.Debug("Registry::Populate", slog.Int("pools", len(pools)))
	return nil
}

// PoolCount returns the number of populated pools.
func (r *Registry) PoolCount() int {
	return len(r.pools)
}

// Pool returns the pool with the given id.
func (r *Registry) Pool(poolID int) (*Pool, error) {
	if poolID < 0 || poolID >= len(r.pools) {
		return nil, cerrors.Wrapf(pagepool.PoolIDError, "pool id %d with %d pools populated", poolID, len(r.pools))
	}
	return r.pools[poolID], nil
}

// AllocatePages allocates npages pages from the pool with the given id and returns the absolute
// address of the run.
func (r *Registry) AllocatePages(npages int64, poolID int) (uint64, error) {
	p, err := r.Pool(poolID)
	if err != nil {
		return 0, err
	}
	return p.Allocate(npages)
}

// DeallocatePages returns npages pages starting at addr to the pool with the given id. The
// unit-page contract of Pool.Deallocate applies.
func (r *Registry) DeallocatePages(addr uint64, npages int64, poolID int) error {
	p, err := r.Pool(poolID)
	if err != nil {
		return err
	}
	return p.Deallocate(addr, npages)
}

// MemSize returns the total byte size of the pool with the given id.
func (r *Registry) MemSize(poolID int) (uint64, error) {
	p, err := r.Pool(poolID)
	if err != nil {
		return 0, err
	}
	return p.TotalBytes(), nil
}

// FreeMemSize returns the free byte count of the pool with the given id.
func (r *Registry) FreeMemSize(poolID int) (uint64, error) {
	p, err := r.Pool(poolID)
	if err != nil {
		return 0, err
	}
	return p.FreeBytes(), nil
}

// LogUnreleasedAllocations reports outstanding allocations across all pools and returns the
// total count.
func (r *Registry) LogUnreleasedAllocations() int {
	count := 0
	for _, p := range r.pools {
		count += p.LogUnreleasedAllocations()
	}
	return count
}

// Validate performs internal consistency checks on every pool.
func (r *Registry) Validate() error {
	for i, p := range r.pools {
		if err := p.Validate(); err != nil {
			return cerrors.Wrapf(err, "pool %d", i)
		}
	}
	return nil
}

// AddDetailedStatistics sums occupancy and free-block layout across all pools.
func (r *Registry) AddDetailedStatistics(stats *pagepool.DetailedStatistics) {
	for _, p := range r.pools {
		p.AddDetailedStatistics(stats)
	}
}

// PrintDetailedMap populates a json object with one entry per pool, keyed by pool id, each
// holding the pool's scalars and the full free-list layout of its engine.
func (r *Registry) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	for i, p := range r.pools {
		poolObj := objState.Name(strconv.Itoa(i)).Object()

		poolObj.Name("PageShift").Int(int(p.pageShift))
		poolObj.Name("StartPage").Int(int(p.startPage))
		poolObj.Name("TotalPages").Int(int(p.totalPages))
		poolObj.Name("AllocatedPages").Int(int(p.AllocatedPages()))
		poolObj.Name("Allocations").Int(p.AllocationCount())

		p.freeList.PrintDetailedMap(poolObj.Name("FreeList"))

		poolObj.End()
	}
}
