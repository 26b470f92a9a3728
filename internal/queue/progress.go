package queue

import "sync/atomic"

// Progress tracks a queue's claim-loop activity the way a long-running
// batch job tracks rows examined/processed/failed. Callers read it through
// Queue.Stats (the management API's queue stats route does); the metrics
// package does not read it.
type Progress struct {
	examined int64
	claimed  int64
	errors   int64
}

// Snapshot is a point-in-time read of Progress's counters.
type Snapshot struct {
	Examined int64
	Claimed  int64
	Errors   int64
}

func (p *Progress) recordExamined(n int64) { atomic.AddInt64(&p.examined, n) }
func (p *Progress) recordClaimed()         { atomic.AddInt64(&p.claimed, 1) }
func (p *Progress) recordError()           { atomic.AddInt64(&p.errors, 1) }

// Snapshot returns the current counter values.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Examined: atomic.LoadInt64(&p.examined),
		Claimed:  atomic.LoadInt64(&p.claimed),
		Errors:   atomic.LoadInt64(&p.errors),
	}
}
