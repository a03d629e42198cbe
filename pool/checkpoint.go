package pool

import (
	"strconv"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// PoolState is the scalar state a pool checkpoint captures: exactly the four values of the
// persisted record, nothing more. Free-list topology is deliberately not part of the persisted
// contract, so restoring a PoolState resets occupancy bookkeeping but loses the actual set of
// free and allocated blocks - the restored pool starts fully free.
type PoolState struct {
	PageShift uint
	StartPage int64
	// FreePageCursor is the legacy free-page counter of the persisted record. It is written as
	// StartPage plus the allocated page count at capture time so the record stays a monotone
	// cursor, but it is reporting-only and is not trusted on restore.
	FreePageCursor int64
	TotalPages     int64
}

const (
	fieldPageShift   = "page_shift"
	fieldStartPage   = "start_page"
	fieldFreePageNum = "free_page_num"
	fieldTotalPages  = "total_pages"
	fieldNumPools    = "num_pools"
	poolKeyPrefix    = "pool"
)

// CheckpointState captures the pool's persistable scalars.
func (p *Pool) CheckpointState() PoolState {
	return PoolState{
		PageShift:      p.pageShift,
		StartPage:      p.startPage,
		FreePageCursor: p.startPage + p.AllocatedPages(),
		TotalPages:     p.totalPages,
	}
}

// WriteCheckpoint emits the state as a json object with the record's field names, in record
// order.
func (s PoolState) WriteCheckpoint(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	objState.Name(fieldPageShift).Int(int(s.PageShift))
	objState.Name(fieldStartPage).Int(int(s.StartPage))
	objState.Name(fieldFreePageNum).Int(int(s.FreePageCursor))
	objState.Name(fieldTotalPages).Int(int(s.TotalPages))
}

// ReadPoolState consumes one pool record object from the reader.
func ReadPoolState(reader *jreader.Reader) (PoolState, error) {
	var state PoolState

	obj := reader.Object()
	for obj.Next() {
		switch string(obj.Name()) {
		case fieldPageShift:
			state.PageShift = uint(reader.Int())
		case fieldStartPage:
			state.StartPage = int64(reader.Int())
		case fieldFreePageNum:
			state.FreePageCursor = int64(reader.Int())
		case fieldTotalPages:
			state.TotalPages = int64(reader.Int())
		default:
			reader.SkipValue()
		}
	}

	return state, reader.Error()
}

// FromCheckpointState builds a pool from a restored record. The engine is re-seeded fully free,
// since the record does not carry free-list topology; the restored cursor is logged so the
// occupancy loss is visible.
func FromCheckpointState(logger *slog.Logger, state PoolState) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if state.TotalPages <= 0 {
		return nil, cerrors.Errorf("restored pool record holds %d pages", state.TotalPages)
	}

	p := &Pool{
		logger:     logger,
		pageShift:  state.PageShift,
		startPage:  state.StartPage,
		totalPages: state.TotalPages,
	}

	if err := p.freeList.Init(state.TotalPages); err != nil {
		return nil, err
	}
	p.live.Init()

	if state.FreePageCursor != state.StartPage {
		logger.Warn("restoring pool from scalar checkpoint; free-list topology reset",
			slog.Int64("start_page", state.StartPage),
			slog.Int64("free_page_num", state.FreePageCursor))
	}

	return p, nil
}

// WriteCheckpoint persists the registry: the pool count first, then one record per pool keyed
// pool0, pool1, and so on in pool-id order.
func (r *Registry) WriteCheckpoint(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	objState.Name(fieldNumPools).Int(len(r.pools))

	for i, p := range r.pools {
		p.CheckpointState().WriteCheckpoint(objState.Name(poolKeyPrefix + strconv.Itoa(i)))
	}
}

// ReadCheckpoint clears the existing pool sequence and rebuilds it from the persisted count and
// per-pool records, in order. Every restored pool starts fully free; see FromCheckpointState.
func (r *Registry) ReadCheckpoint(reader *jreader.Reader) error {
	numPools := -1
	states := make(map[int]PoolState)

	obj := reader.Object()
	for obj.Next() {
		name := string(obj.Name())
		switch {
		case name == fieldNumPools:
			numPools = reader.Int()
		case strings.HasPrefix(name, poolKeyPrefix):
			id, err := strconv.Atoi(strings.TrimPrefix(name, poolKeyPrefix))
			if err != nil {
				return cerrors.Wrapf(err, "checkpoint record %q does not name a pool", name)
			}
			state, err := ReadPoolState(reader)
			if err != nil {
				return err
			}
			states[id] = state
		default:
			reader.SkipValue()
		}
	}

	if err := reader.Error(); err != nil {
		return err
	}

	if numPools < 0 {
		return cerrors.Errorf("checkpoint record is missing %q", fieldNumPools)
	}

	pools := make([]*Pool, 0, numPools)
	for i := 0; i < numPools; i++ {
		state, ok := states[i]
		if !ok {
			return cerrors.Errorf("checkpoint record declares %d pools but %s%d is missing", numPools, poolKeyPrefix, i)
		}

		p, err := FromCheckpointState(r.logger, state)
		if err != nil {
			return cerrors.Wrapf(err, "restoring pool %d", i)
		}
		pools = append(pools, p)
	}

	r.pools = pools
	return nil
}
