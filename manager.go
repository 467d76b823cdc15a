package bufmgr

import (
	"context"
	"math/rand"
	"sync/atomic"

	"github.com/ryogrid/leanbufmgr/config"
	"github.com/ryogrid/leanbufmgr/interfaces"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BufferManager is the core described in spec.md §2: allocation, swip
// resolution (page-fault handling), the background page-provider loop, and
// device I/O wrappers, all mediated by Partitions. It is constructed once
// per process and handed explicitly to collaborators (spec.md §9 "Strategy:
// a single manager handle owned by the process's initialization scope and
// passed explicitly to clients at construction") — no package-level
// global, unlike the original's `BMC::global_bf`.
type BufferManager struct {
	cfg    config.Config
	log    *logrus.Logger
	pool   *dramPool
	device *Device

	partitions     []*Partition
	partitionsMask uint64

	dt *DTRegistry

	nextPageID uint64 // monotonic device page-id allocator, spec.md §3

	Stats Stats

	running int32
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// New constructs a BufferManager: mmaps the DRAM pool, opens the device,
// distributes frames round-robin across partitions, and registers no data
// structures (callers do that before starting page providers), per
// spec.md §3 "DRAM pool" and §6.
func New(cfg config.Config, log *logrus.Logger) (*BufferManager, error) {
	device, err := OpenDevice(cfg.DevicePath, cfg.PageSize, cfg.Truncate)
	if err != nil {
		return nil, err
	}
	mgr, err := NewWithDevice(cfg, log, device)
	if err != nil {
		device.Close()
		return nil, err
	}
	return mgr, nil
}

// NewWithDevice is New with the device already opened, letting a caller
// supply an in-memory BlockDevice (via OpenDeviceOn) instead of a real file —
// this is what the test suite uses to exercise the full resolve/evict
// pipeline without depending on a filesystem that supports O_DIRECT.
func NewWithDevice(cfg config.Config, log *logrus.Logger, device *Device) (*BufferManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	frameSizeApprox := 4096 + 64 // header + typical page slack, sizing heuristic only
	n := int(cfg.DRAMGiB * (1 << 30) / float64(frameSizeApprox))
	if n < cfg.PartitionsCount() {
		n = cfg.PartitionsCount()
	}

	pool, err := newDRAMPool(n, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	partitionsCount := cfg.PartitionsCount()
	freeLowerBound := int64(float64(n) * cfg.FreePct / 100.0 / float64(partitionsCount))
	coolingUpperBound := int64(float64(n) * cfg.CoolPct / 100.0 / float64(partitionsCount))

	partitions := make([]*Partition, partitionsCount)
	for i := range partitions {
		partitions[i] = newPartition(i, freeLowerBound, coolingUpperBound)
	}

	mgr := &BufferManager{
		cfg:            cfg,
		log:            log,
		pool:           pool,
		device:         device,
		partitions:     partitions,
		partitionsMask: uint64(partitionsCount - 1),
		dt:             NewDTRegistry(),
		nextPageID:     1, // page 0 is reserved, spec.md §3
	}

	for i := range pool.frames {
		p := partitions[i%partitionsCount]
		pool.frames[i].reset()
		p.Free.Push(&pool.frames[i])
	}

	return mgr, nil
}

// RegisterDataStructureType binds a type tag to its implementation,
// spec.md §6 `register_data_structure_type(type_tag, vtable)`.
func (m *BufferManager) RegisterDataStructureType(tag interfaces.DTType, impl DataStructure) {
	m.dt.RegisterType(tag, impl)
}

// RegisterDataStructureInstance registers one instance, returning its
// DTID, spec.md §6 `register_instance(type_tag, root, name) -> dt_id`.
func (m *BufferManager) RegisterDataStructureInstance(tag interfaces.DTType, name string) DTID {
	return m.dt.RegisterInstance(tag, name)
}

// getPartition routes pid to its owning Partition by its low
// partition_bits bits, spec.md §3.
func (m *BufferManager) getPartition(pid PageID) *Partition {
	return m.partitions[uint64(pid)&m.partitionsMask]
}

func (m *BufferManager) randomPartition() *Partition {
	return m.partitions[rand.Intn(len(m.partitions))]
}

func (m *BufferManager) randomFrame() *BufferFrame {
	return &m.pool.frames[rand.Intn(len(m.pool.frames))]
}

// AllocatePage implements spec.md §4.7: pick a partition, pop a free frame,
// assign a fresh monotonic page ID, latch it exclusively, and return it.
// Callers immediately write initial content and must call guard.Release.
func (m *BufferManager) AllocatePage() (*BufferFrame, *ExclusiveGuard) {
	partition := m.randomPartition()
	frame := partition.Free.Pop()

	guard := AcquireExclusive(&frame.Latch)

	pid := PageID(atomic.AddUint64(&m.nextPageID, 1) - 1)
	frame.pageID = pid
	frame.state = StateHot
	frame.lastWrittenLSN = 0
	frame.Page.Header = PageHeader{Magic: pid, LSN: 0}
	clear(frame.Page.Data) // Page.Data is carved from the DRAM pool's mmap once at startup, never reallocated
	frame.dirty = true

	m.Stats.recordConsumed()
	return frame, guard
}

// ResolveSwip implements spec.md §4.6. parentGuard is an optimistic guard
// already held on the frame containing swip.
func (m *BufferManager) ResolveSwip(parentGuard *OptimisticGuard, swip *AtomicSwip) (*BufferFrame, error) {
	current := swip.Load()

	// 1. Hot fast path.
	if current.IsSwizzled() {
		if err := parentGuard.Recheck(); err != nil {
			m.Stats.recordRestart()
			return nil, err
		}
		m.Stats.recordHotHit()
		return current.AsFrame(), nil
	}

	// 2. Cold slow path.
	pid := current.AsPageID()
	partition := m.getPartition(pid)

	partition.Lock()
	if err := parentGuard.Recheck(); err != nil {
		partition.Unlock()
		m.Stats.recordRestart()
		return nil, err
	}
	// The swip might have been swizzled by someone else between our load
	// and the lock; re-read it now that we hold the partition mutex.
	current = swip.Load()
	if current.IsSwizzled() {
		partition.Unlock()
		m.Stats.recordRestart()
		return nil, Restart("swip was swizzled while acquiring partition mutex")
	}

	entry, present := partition.cio.lookup(pid)
	if !present {
		return m.resolveMiss(partition, pid, parentGuard, swip)
	}

	switch entry.State {
	case CIOReading:
		return m.resolveJoinReading(partition, pid, entry)
	case CIOCooling:
		return m.resolveCooling(partition, pid, entry, parentGuard, swip)
	default:
		fatalf("CIO entry for page %d has unknown state %v", pid, entry.State)
		return nil, nil
	}
}

// resolveMiss handles the "Absent" branch of spec.md §4.6.2: a true cache
// miss. partition is locked on entry and this function always unlocks it
// before returning (directly, or via the blocking device read releasing it
// first).
func (m *BufferManager) resolveMiss(partition *Partition, pid PageID, parentGuard *OptimisticGuard, swip *AtomicSwip) (*BufferFrame, error) {
	frame, err := partition.Free.TryPop()
	if err != nil {
		partition.Unlock()
		m.Stats.recordRestart()
		return nil, err
	}

	entry := &CIOEntry{State: CIOReading, frame: frame, readersWaiting: 1}
	entry.mu.Lock()
	partition.cio.insert(pid, entry)
	partition.Unlock()

	buf := m.device.AlignedBuffer()
	if ioErr := m.device.ReadPageSync(pid, buf); ioErr != nil {
		entry.mu.Unlock()
		partition.Lock()
		partition.cio.remove(pid)
		partition.Unlock()
		frame.reset()
		partition.Free.Push(frame)
		return nil, ioErr
	}
	decodePage(buf, &frame.Page)
	if frame.Page.Header.Magic != pid {
		m.log.Warnf("bufmgr: page %d magic mismatch on read (got %d)", pid, frame.Page.Header.Magic)
	}
	m.Stats.recordRead()
	m.Stats.recordMiss()

	frame.pageID = pid
	frame.lastWrittenLSN = frame.Page.Header.LSN
	frame.state = StateLoaded

	parentExclusive, upErr := parentGuard.Upgrade()
	if upErr != nil {
		// Could not rewire the parent: hand the frame to the cooling queue
		// instead of losing the read (spec.md §4.6 "If the try-upgrade
		// fails... hand it to the cooling queue under state COOLING with
		// the cooled-because-of-reading flag set, then restart").
		partition.Lock()
		entry.State = CIOCooling
		elem := partition.cooling.pushBack(frame)
		entry.elem = elem
		frame.state = StateCold
		frame.cooledByRead = true
		partition.coolingCount++
		partition.Unlock()
		entry.mu.Unlock()
		m.Stats.recordRestart()
		return nil, Restart("failed to upgrade parent for installed page-in")
	}

	partition.Lock()
	swip.Swizzle(frame)
	frame.state = StateHot
	entry.readersWaiting--
	last := entry.readersWaiting == 0
	if last {
		partition.cio.remove(pid)
	}
	partition.Unlock()
	entry.mu.Unlock()
	parentExclusive.Release()

	return frame, nil
}

// resolveJoinReading handles spec.md §4.6.2's "Present, READING" branch:
// another worker is mid page-in. partition is locked on entry; this
// function unlocks it before blocking on the per-entry mutex, exactly as
// the ordering constraint in spec.md §4.6 requires.
func (m *BufferManager) resolveJoinReading(partition *Partition, pid PageID, entry *CIOEntry) (*BufferFrame, error) {
	entry.readersWaiting++
	partition.Unlock()

	entry.mu.Lock()
	entry.mu.Unlock()

	partition.Lock()
	entry.readersWaiting--
	if entry.readersWaiting == 0 {
		partition.cio.remove(pid)
	}
	partition.Unlock()

	m.Stats.recordRestart()
	return nil, Restart("joined an in-flight page-in, retry takes the hot path")
}

// resolveCooling handles spec.md §4.6.2's "Present, COOLING" branch: the
// frame is cold in the queue. partition is locked on entry; it is unlocked
// before returning on every path.
func (m *BufferManager) resolveCooling(partition *Partition, pid PageID, entry *CIOEntry, parentGuard *OptimisticGuard, swip *AtomicSwip) (*BufferFrame, error) {
	frame := entry.frame
	partition.Unlock()

	frameGuard := NewOptimisticGuard(&frame.Latch)

	parentExclusive, err := parentGuard.Upgrade()
	if err != nil {
		m.Stats.recordRestart()
		return nil, err
	}
	frameExclusive, err := frameGuard.Upgrade()
	if err != nil {
		parentExclusive.Release()
		m.Stats.recordRestart()
		return nil, err
	}

	partition.Lock()
	swip.Swizzle(frame)
	partition.removeCooling(pid, entry)
	frame.state = StateHot
	wasCooledByRead := frame.cooledByRead
	frame.cooledByRead = false
	partition.Unlock()

	frameExclusive.Release()
	parentExclusive.Release()

	if !wasCooledByRead {
		m.Stats.recordColdHit()
	}
	return frame, nil
}

// ReclaimPage returns an exclusively-latched frame directly to its
// partition's free list, bypassing the cooling queue. Spec.md §6:
// `reclaim_page(frame)` — frame is exclusively latched; releases it.
func (m *BufferManager) ReclaimPage(frame *BufferFrame, guard *ExclusiveGuard) {
	partition := m.getPartition(frame.pageID)
	m.Stats.recordFreed()
	frame.reset()
	guard.Release()
	partition.Free.Push(frame)
}

// Device exposes the underlying device for collaborators that need to
// read/write pages outside the swip-resolution path (e.g. tests).
func (m *BufferManager) Device() *Device { return m.device }

// Config returns the manager's configuration.
func (m *BufferManager) Config() config.Config { return m.cfg }

// PartitionsCount returns the number of partitions.
func (m *BufferManager) PartitionsCount() int { return len(m.partitions) }

// IsRunning reports whether the page-provider fleet is currently started.
func (m *BufferManager) IsRunning() bool { return atomicLoadRunning(&m.running) }
