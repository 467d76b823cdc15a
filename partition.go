package bufmgr

import "sync"

// Partition is one cache-line-isolated shard described in spec.md §3/§4.3:
// it owns a FreeList, a cooling queue, a CIO table, and the mutex that
// serializes all CIO operations (insert/transition/delete) and cooling
// queue mutation within the shard. Page IDs are routed to partitions by
// their low partitionBits bits (spec.md §3 "Partition").
type Partition struct {
	id int

	mu sync.Mutex // serializes CIO table + cooling queue mutation

	Free    *FreeList
	cooling *coolingQueue
	cio     *cioTable

	coolingCount int64 // frames currently parked in the cooling queue

	// freeLowerBound / coolingUpperBound are the per-partition thresholds
	// derived once from Config.FreePct / Config.CoolPct and the DRAM pool
	// size (original_source/.../BufferManager.cpp's free_bfs_limit /
	// cooling_bfs_upper_bound), consumed by the page provider's phase
	// conditions (spec.md §4.8).
	freeLowerBound    int64
	coolingUpperBound int64
}

func newPartition(id int, freeLowerBound, coolingUpperBound int64) *Partition {
	return &Partition{
		id:                id,
		Free:              NewFreeList(),
		cooling:           newCoolingQueue(),
		cio:               newCIOTable(),
		freeLowerBound:    freeLowerBound,
		coolingUpperBound: coolingUpperBound,
	}
}

// Lock / Unlock expose the partition mutex to the manager, which always
// releases it before any blocking device I/O (spec.md §4.6 "Ordering
// constraint").
func (p *Partition) Lock()   { p.mu.Lock() }
func (p *Partition) Unlock() { p.mu.Unlock() }

// CoolingCount returns the number of frames currently in the cooling queue.
func (p *Partition) CoolingCount() int64 { return p.coolingCount }

// phase1Condition reports whether phase 1 should keep cooling more frames
// in this partition: free_count + cooling_count < cooling_upper_bound.
func (p *Partition) phase1Condition() bool {
	return p.Free.Count()+p.coolingCount < p.coolingUpperBound
}

// phase23Condition reports whether phases 2/3 have work to do:
// free_count < free_lower_bound.
func (p *Partition) phase23Condition() bool {
	return p.Free.Count() < p.freeLowerBound
}

// insertCooling records frame as newly COLD: must be called with p locked.
// Returns the CIOEntry so the caller (phase 1, or resolve's failed-upgrade
// path) can finish installing it.
func (p *Partition) insertCooling(frame *BufferFrame) *CIOEntry {
	elem := p.cooling.pushBack(frame)
	entry := &CIOEntry{State: CIOCooling, frame: frame, elem: elem}
	p.cio.insert(frame.pageID, entry)
	p.coolingCount++
	return entry
}

// removeCooling erases frame's CIO entry and cooling-queue element. Must be
// called with p locked; per spec.md §4.3's invariant, this always happens
// in the same critical section as the cooling-queue erase.
func (p *Partition) removeCooling(pid PageID, entry *CIOEntry) {
	p.cooling.erase(entry.elem)
	p.cio.remove(pid)
	p.coolingCount--
}
