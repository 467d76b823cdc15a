package bufmgr_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dsnet/golib/memfile"
	bufmgr "github.com/ryogrid/leanbufmgr"
	"github.com/ryogrid/leanbufmgr/config"
	"github.com/ryogrid/leanbufmgr/demotree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDevice adapts memfile.File to bufmgr.BlockDevice for tests that need a
// full BufferManager without depending on a filesystem that supports
// O_DIRECT.
type memDevice struct{ *memfile.File }

func (memDevice) Sync() error { return nil }

// testConfig returns a small, fast single-partition configuration; tests
// that need a real BufferManager pair it with newTestManager, which backs
// the device with memfile instead of cfg.DevicePath.
func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.PartitionBits = 0
	cfg.PPThreads = 1
	cfg.DRAMGiB = 0.01
	return cfg
}

func newTestManager(t *testing.T) *bufmgr.BufferManager {
	t.Helper()
	cfg := testConfig(t)
	f := memfile.New(make([]byte, int(cfg.PageSize)*4096))
	device := bufmgr.OpenDeviceOn(memDevice{f}, cfg.PageSize)

	mgr, err := bufmgr.NewWithDevice(cfg, nil, device)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Device().Close() })
	return mgr
}

func TestBufferManager_AllocatePageReturnsExclusivelyLatchedFreshFrame(t *testing.T) {
	mgr := newTestManager(t)

	frame, guard := mgr.AllocatePage()
	defer guard.Release()

	assert.Equal(t, bufmgr.StateHot, frame.State())
	assert.True(t, frame.Latch.IsExclusivelyLatched())
	assert.True(t, frame.IsDirty())
	assert.NotZero(t, frame.PageID())
}

func TestBufferManager_AllocatePageNeverReusesAPageIDWithinARun(t *testing.T) {
	mgr := newTestManager(t)

	seen := make(map[bufmgr.PageID]bool)
	for i := 0; i < 50; i++ {
		frame, guard := mgr.AllocatePage()
		assert.False(t, seen[frame.PageID()], "page id %d reused", frame.PageID())
		seen[frame.PageID()] = true
		guard.Release()
	}
}

func TestBufferManager_ResolveSwipHotPathReturnsSameFrame(t *testing.T) {
	mgr := newTestManager(t)
	tree := demotree.New(mgr)

	rootFrame := tree.RootSwip().AsFrame()
	child, guard := tree.NewChild(rootFrame)
	guard.Release()

	parentGuard := bufmgr.NewOptimisticGuard(&rootFrame.Latch)
	var childSwip *bufmgr.AtomicSwip
	require.NoError(t, tree.IterateChildSwips(rootFrame, func(s *bufmgr.AtomicSwip) bool {
		childSwip = s
		return false
	}))
	require.NotNil(t, childSwip)

	resolved, err := mgr.ResolveSwip(parentGuard, childSwip)
	require.NoError(t, err)
	assert.Same(t, child, resolved)
}

func TestBufferManager_ResolveSwipMissReadsFromDevice(t *testing.T) {
	mgr := newTestManager(t)
	tree := demotree.New(mgr)

	rootFrame := tree.RootSwip().AsFrame()
	child, guard := tree.NewChild(rootFrame)
	child.Page.Data[0] = 0xAB
	guard.Release()

	// Simulate the page having been evicted: write it to the device and
	// unswizzle the parent's swip to a bare page id, exactly what
	// installCooling/phase 2/3 do to a real cold frame.
	var childSwip *bufmgr.AtomicSwip
	require.NoError(t, tree.IterateChildSwips(rootFrame, func(s *bufmgr.AtomicSwip) bool {
		childSwip = s
		return false
	}))
	pid := child.PageID()

	buf := mgr.Device().AlignedBuffer()
	encodeForTest(buf, child, mgr.Config().PageSize)
	require.NoError(t, mgr.Device().WritePageSync(pid, buf))
	childSwip.Unswizzle(pid)

	parentGuard := bufmgr.NewOptimisticGuard(&rootFrame.Latch)
	resolved, err := mgr.ResolveSwip(parentGuard, childSwip)
	require.NoError(t, err)
	assert.Equal(t, pid, resolved.PageID())
	assert.Equal(t, bufmgr.StateHot, resolved.State())
}

// TestBufferManager_ResolveSwipConcurrentMissersJoinASingleRead exercises
// spec.md §8 scenario 2: N goroutines calling resolve_swip concurrently for
// the same unresident page id must trigger exactly one device read, with
// every caller eventually observing the same resident frame. One goroutine
// takes the CIO-reading path (resolveMiss); the rest must join it
// (resolveJoinReading) and retry, never each issuing their own read.
func TestBufferManager_ResolveSwipConcurrentMissersJoinASingleRead(t *testing.T) {
	mgr := newTestManager(t)
	tree := demotree.New(mgr)

	rootFrame := tree.RootSwip().AsFrame()
	child, guard := tree.NewChild(rootFrame)
	child.Page.Data[0] = 0xCD
	guard.Release()

	var childSwip *bufmgr.AtomicSwip
	require.NoError(t, tree.IterateChildSwips(rootFrame, func(s *bufmgr.AtomicSwip) bool {
		childSwip = s
		return false
	}))
	pid := child.PageID()

	buf := mgr.Device().AlignedBuffer()
	encodeForTest(buf, child, mgr.Config().PageSize)
	require.NoError(t, mgr.Device().WritePageSync(pid, buf))
	childSwip.Unswizzle(pid)

	readsBefore := mgr.Stats.Reads()

	const goroutines = 16
	results := make([]*bufmgr.BufferFrame, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 10_000; attempt++ {
				parentGuard := bufmgr.NewOptimisticGuard(&rootFrame.Latch)
				frame, err := mgr.ResolveSwip(parentGuard, childSwip)
				if err == nil {
					results[i] = frame
					return
				}
			}
			t.Errorf("goroutine %d never converged on a resolved frame", i)
		}()
	}
	wg.Wait()

	assert.Equal(t, readsBefore+1, mgr.Stats.Reads(), "concurrent missers on the same page id must trigger exactly one device read")
	require.NotNil(t, results[0])
	for i, frame := range results {
		require.NotNil(t, frame, "goroutine %d got a nil frame", i)
		// The page-in allocates a fresh frame from the free list (child is the
		// pre-eviction frame, now a stale reference); every joiner must land
		// on that one shared frame, not child.
		assert.Same(t, results[0], frame, "goroutine %d resolved a different frame than goroutine 0", i)
		assert.Equal(t, pid, frame.PageID())
	}
}

func TestBufferManager_ReclaimPageReturnsFrameToFreeList(t *testing.T) {
	mgr := newTestManager(t)

	before := mgr.Stats.ConsumedPages()
	frame, guard := mgr.AllocatePage()
	mgr.ReclaimPage(frame, guard)

	frame2, guard2 := mgr.AllocatePage()
	defer guard2.Release()
	assert.Equal(t, before+2, mgr.Stats.ConsumedPages())
	// Single partition, LIFO free list: the reclaimed frame is handed out next.
	assert.Same(t, frame, frame2)
}

func TestBufferManager_StartPageProvidersFlushAndStopIsClean(t *testing.T) {
	mgr := newTestManager(t)
	tree := demotree.New(mgr)
	rootFrame := tree.RootSwip().AsFrame()
	for i := 0; i < 8; i++ {
		_, guard := tree.NewChild(rootFrame)
		guard.Release()
	}

	ctx := context.Background()
	require.NoError(t, mgr.StartPageProviders(ctx))
	assert.True(t, mgr.IsRunning())

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mgr.FlushAndStop(stopCtx))
	assert.False(t, mgr.IsRunning())
}

// encodeForTest mirrors bufmgr's own on-device page encoding well enough for
// a miss-path test to fabricate a plausible on-device page; it intentionally
// duplicates only the header layout (magic/lsn/dtid) since codec.go's
// encodePage is unexported.
func encodeForTest(buf []byte, frame *bufmgr.BufferFrame, pageSize uint32) {
	putUint64 := func(b []byte, v uint64) {
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	putUint32 := func(b []byte, v uint32) {
		for i := 0; i < 4; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	putUint64(buf[0:8], uint64(frame.PageID()))
	putUint64(buf[8:16], uint64(frame.LastWrittenLSN()))
	putUint32(buf[16:20], uint32(frame.Page.Header.DTID))
	copy(buf[20:], frame.Page.Data)
}
