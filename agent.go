package bufmgr

import (
	"container/list"
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// StartPageProviders launches cfg.PPThreads background agents, each bound
// to a contiguous partition range, implementing the three-phase eviction
// pipeline of spec.md §4.8. It is the Go-idiomatic replacement for the
// original's raw std::thread vector plus bg_threads_keep_running/
// bg_threads_counter pause-spin: golang.org/x/sync/errgroup supervises the
// fleet and ctx cancellation (triggered by FlushAndStop) is the
// cooperative "keep running" flag.
func (m *BufferManager) StartPageProviders(ctx context.Context) error {
	if m.cfg.PartitionsCount()%m.cfg.PPThreads != 0 {
		return Restart("pp_threads must divide partitions_count")
	}
	agentCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	g, gctx := errgroup.WithContext(agentCtx)
	m.group = g

	perAgent := m.cfg.PartitionsCount() / m.cfg.PPThreads
	for t := 0; t < m.cfg.PPThreads; t++ {
		begin := t * perAgent
		end := begin + perAgent
		cpu := t
		g.Go(func() error {
			if m.cfg.ElevatePriority {
				pinToCPU(cpu)
			}
			m.pageProviderLoop(gctx, begin, end)
			return nil
		})
	}
	atomicStoreRunning(&m.running, true)
	return nil
}

// FlushAndStop implements spec.md §6: stops background agents and flushes
// remaining dirty pages. Recovery itself stays out of scope (spec.md §1).
// ctx bounds how long this waits for agents to exit — if it expires first,
// FlushAndStop returns ctx.Err() without flushing, since frames an agent
// still holds latched cannot be safely written back from here.
func (m *BufferManager) FlushAndStop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.group != nil {
		done := make(chan error, 1)
		go func() { done <- m.group.Wait() }()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	atomicStoreRunning(&m.running, false)
	return m.flushAllDirty()
}

// flushAllDirty synchronously writes every dirty frame back to the device,
// the shutdown-time equivalent of the original's flushDropAllPages (left as
// a TODO in original_source/.../BufferManager.cpp; spec.md §1 explicitly
// excludes a full recovery protocol, but draining known-dirty frames on a
// clean shutdown is not recovery, it is just not losing writes we already
// know about).
func (m *BufferManager) flushAllDirty() error {
	for _, frame := range m.pool.frames {
		if frame.state == StateFree || !frame.dirty {
			continue
		}
		buf := m.device.AlignedBuffer()
		lsn := frame.lastWrittenLSN + 1
		encodePage(buf, &frame.Page, lsn, frame.pageID)
		if err := m.device.WritePageSync(frame.pageID, buf); err != nil {
			return err
		}
		frame.lastWrittenLSN = lsn
		frame.dirty = false
		frame.writeback = false
		m.Stats.recordWrite()
	}
	return m.device.Sync()
}

// pageProviderLoop runs the three-phase pipeline against partitions
// [begin, end) until ctx is cancelled, spec.md §4.8.
func (m *BufferManager) pageProviderLoop(ctx context.Context, begin, end int) {
	awb := NewAsyncWriteBuffer(m.device, m.cfg.AsyncBatchSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for p := begin; p < end; p++ {
			partition := m.partitions[p]
			m.phase1Cool(partition, begin, end)
			if partition.phase23Condition() {
				k := partition.freeLowerBound - partition.Free.Count()
				_, added := m.phase2Flush(partition, awb, int(k))
				m.phase3Drain(ctx, partition, awb, added)
			}
		}
		// Avoid a pure busy loop when there is nothing to do; this is an
		// implementation-chosen yield, not part of the spec's protocol.
		time.Sleep(time.Millisecond)
	}
}

// phase1Cool implements spec.md §4.8 Phase 1: move hot pages into the
// cooling queue until the partition's cooling_upper_bound is reached. r
// carries over across iterations when step (d) walks to a child, so the
// next round re-validates candidacy on the descendant rather than
// resampling — this is what makes leaves evict ahead of internal nodes.
func (m *BufferManager) phase1Cool(partition *Partition, begin, end int) {
	r := m.randomFrame()
	for partition.phase1Condition() {
		if r.Latch.IsExclusivelyLatched() {
			r = m.randomFrame()
			continue
		}
		guard := NewOptimisticGuard(&r.Latch)

		ownerPartition := int(uint64(r.pageID) & m.partitionsMask)
		isCandidate := r.state == StateHot && ownerPartition >= begin && ownerPartition < end && !r.Latch.IsExclusivelyLatched()
		if !isCandidate {
			r = m.randomFrame()
			continue
		}
		if guard.Recheck() != nil {
			r = m.randomFrame()
			continue
		}

		// (d) Prefer evicting descendants: walk down through any swizzled
		// child before committing to r, so leaves cool ahead of their
		// ancestors.
		pickedChild := false
		_ = m.dt.IterateChildSwips(r, func(swip *AtomicSwip) bool {
			child := swip.Load()
			if child.IsSwizzled() {
				r = child.AsFrame()
				pickedChild = true
				return false
			}
			return true
		})
		if pickedChild {
			continue
		}

		m.installCooling(r, guard)
		r = m.randomFrame()
	}
}

// installCooling is the tail of phase 1.e: find r's parent, upgrade both to
// exclusive, and unswizzle the parent's swip to r's page id.
func (m *BufferManager) installCooling(r *BufferFrame, guard *OptimisticGuard) {
	parentGuard, parentFrame, parentSwip, err := m.dt.FindParent(r)
	if err != nil {
		return
	}
	parentExclusive, err := parentGuard.Upgrade()
	if err != nil {
		return
	}
	rExclusive, err := guard.Upgrade()
	if err != nil {
		parentExclusive.Release()
		return
	}

	partition := m.getPartition(r.pageID)
	partition.Lock()
	if partition.cio.has(r.pageID) {
		// Someone else is mid page-in for this exact page id; abandon.
		partition.Unlock()
		rExclusive.Release()
		parentExclusive.Release()
		return
	}
	partition.insertCooling(r)
	r.state = StateCold
	r.cooledByRead = false
	parentSwip.Unswizzle(r.pageID)
	partition.Unlock()

	_ = parentFrame
	rExclusive.Release()
	parentExclusive.Release()
	m.Stats.recordUnswizzled()
}

// phase2Flush implements spec.md §4.8 Phase 2: walk up to k entries from
// the head of the cooling queue, adding dirty frames to awb and reclaiming
// clean ones directly. It returns the number of entries visited and, of
// those, the number actually reserved in awb (i.e. how many phase 3 has
// something to submit for) — the two differ whenever a round reclaims only
// clean frames, which callers must not conflate.
func (m *BufferManager) phase2Flush(partition *Partition, awb *AsyncWriteBuffer, k int) (visited, added int) {
	if k <= 0 {
		return 0, 0
	}
	partition.Lock()
	defer partition.Unlock()

	elem := partition.cooling.front()
	for elem != nil && visited < k {
		next := elem.Next()
		frame := frameOf(elem)
		visited++
		if !frame.cooledByRead {
			if frame.dirty {
				if !awb.Add(frame) {
					break
				}
				added++
			} else {
				m.tryReclaimCoolingLocked(partition, elem, frame)
			}
		}
		elem = next
	}
	return visited, added
}

// phase3Drain implements spec.md §4.8 Phase 3: submit the async batch,
// poll for completions, update LSNs/writeback flags, then reclaim any
// frames the completions made clean. pages must be the number of frames
// actually reserved in awb this round (phase2Flush's added return) — Poll
// blocks until at least one write completes or ctx is done, so calling this
// with nothing submitted would stall the page-provider agent until shutdown.
func (m *BufferManager) phase3Drain(ctx context.Context, partition *Partition, awb *AsyncWriteBuffer, pages int) {
	if pages <= 0 {
		return
	}
	awb.Submit()
	completed := awb.Poll(ctx)
	if completed == 0 {
		return
	}
	awb.DrainCompleted(completed, func(frame *BufferFrame, writtenLSN LSN) {
		frame.lastWrittenLSN = writtenLSN
		frame.writeback = false
		frame.dirty = false
		m.Stats.recordWrite()
	})

	partition.Lock()
	defer partition.Unlock()
	elem := partition.cooling.front()
	visited := 0
	for elem != nil && visited < completed {
		next := elem.Next()
		frame := frameOf(elem)
		visited++
		if !frame.dirty && !frame.cooledByRead {
			m.tryReclaimCoolingLocked(partition, elem, frame)
		}
		elem = next
	}
}

// tryReclaimCoolingLocked attempts to exclusively latch frame (non-blocking)
// and, on success, erases it from the cooling queue/CIO table and returns it
// to the FreeList. partition must already be locked.
func (m *BufferManager) tryReclaimCoolingLocked(partition *Partition, elem *list.Element, frame *BufferFrame) {
	guard, ok := frame.Latch.TryAcquireExclusive()
	if !ok {
		return
	}
	entry, present := partition.cio.lookup(frame.pageID)
	if !present {
		guard.Release()
		return
	}
	partition.removeCooling(frame.pageID, entry)
	frame.reset()
	guard.Release()
	partition.Free.Push(frame)
	m.Stats.recordEvicted()
}
