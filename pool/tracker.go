package pool

import (
	"context"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// allocationTracker records the extents currently handed out by a pool, keyed by their first
// page offset. The engine itself forgets a block the moment it is acquired, so this map is what
// lets a pool report outstanding allocations at teardown. Unit-page frees punch holes in
// recorded extents, splitting them as needed.
type allocationTracker struct {
	extents *swiss.Map[int64, int64]
}

func (t *allocationTracker) Init() {
	t.extents = swiss.NewMap[int64, int64](42)
}

func (t *allocationTracker) Count() int {
	return t.extents.Count()
}

func (t *allocationTracker) Add(offset, pages int64) {
	t.extents.Put(offset, pages)
}

// RemovePage forgets a single page. If the page is interior to a recorded extent, the extent is
// split around it.
func (t *allocationTracker) RemovePage(offset int64) {
	if pages, ok := t.extents.Get(offset); ok {
		t.extents.Delete(offset)
		if pages > 1 {
			t.extents.Put(offset+1, pages-1)
		}
		return
	}

	var foundStart, foundPages int64
	found := false
	t.extents.Iter(func(start, pages int64) bool {
		if start < offset && offset < start+pages {
			foundStart = start
			foundPages = pages
			found = true
			return true
		}
		return false
	})

	if !found {
		return
	}

	t.extents.Delete(foundStart)
	t.extents.Put(foundStart, offset-foundStart)
	if tail := foundStart + foundPages - (offset + 1); tail > 0 {
		t.extents.Put(offset+1, tail)
	}
}

func (t *allocationTracker) LogUnreleased(logger *slog.Logger, startPage int64) int {
	count := 0
	t.extents.Iter(func(offset, pages int64) bool {
		logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.Int64("page", startPage+offset),
			slog.Int64("pages", pages))
		count++
		return false
	})
	return count
}
