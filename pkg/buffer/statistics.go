package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics counts buffer operations. Counters are safe for concurrent use and
// are always collected, whether or not Prometheus metrics are enabled.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	peeks     atomic.Int64
	requeues  atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	size    atomic.Int64
	maxSize atomic.Int64
	started time.Time
}

func newStatistics() *Statistics {
	return &Statistics{started: time.Now()}
}

func (s *Statistics) setSize(n int) {
	size := int64(n)
	s.size.Store(size)
	for {
		peak := s.maxSize.Load()
		if size <= peak || s.maxSize.CompareAndSwap(peak, size) {
			return
		}
	}
}

// Writes is the number of Push calls.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads is the number of successful PopFront calls.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Peeks is the number of successful Peek calls.
func (s *Statistics) Peeks() int64 { return s.peeks.Load() }

// Requeues is the number of PushFront calls.
func (s *Statistics) Requeues() int64 { return s.requeues.Load() }

// Overflows is the number of inserts that found the buffer full.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops is the number of items evicted or rejected by the overflow policy.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Size is the item count after the last mutation.
func (s *Statistics) Size() int64 { return s.size.Load() }

// MaxSize is the highest item count seen.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// Snapshot is a point-in-time copy of Statistics.
type Snapshot struct {
	Writes    int64         `json:"writes"`
	Reads     int64         `json:"reads"`
	Peeks     int64         `json:"peeks"`
	Requeues  int64         `json:"requeues"`
	Overflows int64         `json:"overflows"`
	Drops     int64         `json:"drops"`
	Size      int64         `json:"size"`
	MaxSize   int64         `json:"max_size"`
	DropRate  float64       `json:"drop_rate"` // drops per write
	Uptime    time.Duration `json:"uptime"`
}

// Snapshot copies the counters. Individual fields are consistent, the set as a
// whole may straddle a concurrent operation.
func (s *Statistics) Snapshot() Snapshot {
	snap := Snapshot{
		Writes:    s.Writes(),
		Reads:     s.Reads(),
		Peeks:     s.Peeks(),
		Requeues:  s.Requeues(),
		Overflows: s.Overflows(),
		Drops:     s.Drops(),
		Size:      s.Size(),
		MaxSize:   s.MaxSize(),
		Uptime:    time.Since(s.started),
	}
	if snap.Writes > 0 {
		snap.DropRate = float64(snap.Drops) / float64(snap.Writes)
	}
	return snap
}
