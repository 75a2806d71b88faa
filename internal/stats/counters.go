// Package stats holds the process-wide, monotonic write-path counters: a
// small set of atomic counters, mutated from many goroutines handling
// concurrent FUSE requests, read once at shutdown for the summary log
// record. They are operator-log-only and are never exposed over any RPC.
package stats

import "sync/atomic"

// Counters are the write-path statistics: total writes seen, writes blocked
// by the detector, and backups created. They are never decremented.
type Counters struct {
	TotalWrites    atomic.Uint64
	BlockedWrites  atomic.Uint64
	BackupsCreated atomic.Uint64
}

// Snapshot is an immutable point-in-time read of the counters, used for the
// shutdown log record.
type Snapshot struct {
	TotalWrites    uint64
	BlockedWrites  uint64
	BackupsCreated uint64
}

// Snapshot reads all three counters. There is no cross-counter atomicity
// guarantee beyond each individual load; BlockedWrites <= TotalWrites
// nonetheless always holds, because BlockedWrites is never incremented
// without a prior TotalWrites increment for the same call, and BlockedWrites
// is loaded before TotalWrites.
func (c *Counters) Snapshot() Snapshot {
	blocked := c.BlockedWrites.Load()
	return Snapshot{
		TotalWrites:    c.TotalWrites.Load(),
		BlockedWrites:  blocked,
		BackupsCreated: c.BackupsCreated.Load(),
	}
}

// BlockRate returns the fraction of writes blocked, or 0 if there have been
// no writes yet.
func (s Snapshot) BlockRate() float64 {
	if s.TotalWrites == 0 {
		return 0
	}
	return float64(s.BlockedWrites) / float64(s.TotalWrites)
}
