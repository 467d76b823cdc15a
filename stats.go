package bufmgr

import "sync/atomic"

// Stats is the minimal in-process bookkeeping the eviction pipeline and
// resolve path record as they run: restart rate, hit/miss counts, and I/O
// volume. The core only writes these counters and never reads them back;
// the phase thresholds read free/cooling counts, which live on Partition.
// Full metrics/counters collection is explicitly out of scope (spec.md §1)
// as an external collaborator — this is just the subset that tests and
// cmd/bufmgrd read to observe the core (e.g. that exactly one device read
// was issued).
type Stats struct {
	restarts        int64
	hotHits         int64
	coldHits        int64
	misses          int64
	reads           int64
	writes          int64
	evictedPages    int64
	unswizzledPages int64
	consumedPages   int64
	freedPages      int64
}

func (s *Stats) recordRestart()    { atomic.AddInt64(&s.restarts, 1) }
func (s *Stats) recordHotHit()     { atomic.AddInt64(&s.hotHits, 1) }
func (s *Stats) recordColdHit()    { atomic.AddInt64(&s.coldHits, 1) }
func (s *Stats) recordMiss()       { atomic.AddInt64(&s.misses, 1) }
func (s *Stats) recordRead()       { atomic.AddInt64(&s.reads, 1) }
func (s *Stats) recordWrite()      { atomic.AddInt64(&s.writes, 1) }
func (s *Stats) recordEvicted()    { atomic.AddInt64(&s.evictedPages, 1) }
func (s *Stats) recordUnswizzled() { atomic.AddInt64(&s.unswizzledPages, 1) }
func (s *Stats) recordConsumed()   { atomic.AddInt64(&s.consumedPages, 1) }
func (s *Stats) recordFreed()      { atomic.AddInt64(&s.freedPages, 1) }

// Restarts returns the total number of Restart signals raised so far.
func (s *Stats) Restarts() int64 { return atomic.LoadInt64(&s.restarts) }

// HotHits returns the number of resolves satisfied by the fast path.
func (s *Stats) HotHits() int64 { return atomic.LoadInt64(&s.hotHits) }

// ColdHits returns the number of resolves satisfied via the cooling queue.
func (s *Stats) ColdHits() int64 { return atomic.LoadInt64(&s.coldHits) }

// Misses returns the number of resolves that triggered a device read.
func (s *Stats) Misses() int64 { return atomic.LoadInt64(&s.misses) }

// Reads returns the number of synchronous device reads issued.
func (s *Stats) Reads() int64 { return atomic.LoadInt64(&s.reads) }

// Writes returns the number of device writes completed.
func (s *Stats) Writes() int64 { return atomic.LoadInt64(&s.writes) }

// EvictedPages returns the number of frames reclaimed to a FreeList.
func (s *Stats) EvictedPages() int64 { return atomic.LoadInt64(&s.evictedPages) }

// ConsumedPages returns the monotonic count of page IDs ever allocated.
// This is the hook spec.md §9's Open Question leaves deliberately inert:
// there is no corresponding free-list of reclaimed device page IDs.
func (s *Stats) ConsumedPages() int64 { return atomic.LoadInt64(&s.consumedPages) }
