package pagepool

import "math"

type Statistics struct {
	PoolCount       int
	AllocationCount int
	TotalPages      int64
	AllocatedPages  int64
}

func (s *Statistics) Clear() {
	s.PoolCount = 0
	s.AllocationCount = 0
	s.TotalPages = 0
	s.AllocatedPages = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.PoolCount += other.PoolCount
	s.AllocationCount += other.AllocationCount
	s.TotalPages += other.TotalPages
	s.AllocatedPages += other.AllocatedPages
}

type DetailedStatistics struct {
	Statistics
	FreeBlockCount     int
	FreeBlockPagesMin  int64
	FreeBlockPagesMax  int64
	FreeBlocksPerOrder [NumOrders]int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeBlockCount = 0
	s.FreeBlockPagesMin = math.MaxInt64
	s.FreeBlockPagesMax = 0
	for order := range s.FreeBlocksPerOrder {
		s.FreeBlocksPerOrder[order] = 0
	}
}

func (s *DetailedStatistics) AddFreeBlock(order int, pages int64) {
	s.FreeBlockCount++
	s.FreeBlocksPerOrder[order]++

	if pages < s.FreeBlockPagesMin {
		s.FreeBlockPagesMin = pages
	}

	if pages > s.FreeBlockPagesMax {
		s.FreeBlockPagesMax = pages
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeBlockCount += other.FreeBlockCount

	if other.FreeBlockPagesMin < s.FreeBlockPagesMin {
		s.FreeBlockPagesMin = other.FreeBlockPagesMin
	}

	if other.FreeBlockPagesMax > s.FreeBlockPagesMax {
		s.FreeBlockPagesMax = other.FreeBlockPagesMax
	}

	for order := range s.FreeBlocksPerOrder {
		s.FreeBlocksPerOrder[order] += other.FreeBlocksPerOrder[order]
	}
}
