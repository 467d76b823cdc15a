package bufmgr

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// writeSlot is one reserved-but-not-yet-submitted entry of an
// AsyncWriteBuffer.
type writeSlot struct {
	frame *BufferFrame
	pid   PageID
	lsn   LSN
	buf   []byte
}

// completion records one finished write, consumed by DrainCompleted.
type completion struct {
	frame *BufferFrame
	lsn   LSN
	err   error
}

// AsyncWriteBuffer is the bounded batch of outstanding asynchronous writes
// described in spec.md §4.5. The original binds this to a Linux AIO context
// (io_uring/libaio) against the raw device fd; Go has no portable kernel
// AIO binding in the pack, so this is backed by `sourcegraph/conc`'s bounded
// goroutine pool (already present in the pack via tuannm99-novasql) issuing
// one synchronous WritePageSync per reserved slot — functionally the same
// contract (bounded outstanding writes, poll blocks for completions) via
// goroutines instead of kernel iocbs.
type AsyncWriteBuffer struct {
	dev      *Device
	capacity int

	mu      sync.Mutex
	pending []writeSlot // reserved via Add, not yet Submit'd

	inFlight    int
	completions chan completion
	drained     []completion
}

// NewAsyncWriteBuffer creates a batch bound to dev with the given capacity
// (spec.md §6 `async_batch_size`).
func NewAsyncWriteBuffer(dev *Device, capacity int) *AsyncWriteBuffer {
	return &AsyncWriteBuffer{
		dev:         dev,
		capacity:    capacity,
		completions: make(chan completion, capacity),
	}
}

// Add reserves a slot for frame: marks its writeback flag, snapshots the
// page payload into a page-aligned buffer, and returns false if the batch
// is already full. Spec.md §4.5: "the implementation must not mutate the
// page payload between add and completion" — copying here, rather than
// pinning the live buffer, is what lets the page provider keep the frame
// latch-free while the write is outstanding; writers that want to touch an
// in-flight page must wait for writeback to clear (enforced by callers, not
// by AsyncWriteBuffer itself).
func (awb *AsyncWriteBuffer) Add(frame *BufferFrame) bool {
	awb.mu.Lock()
	defer awb.mu.Unlock()

	if len(awb.pending)+awb.inFlight >= awb.capacity {
		return false
	}

	buf := awb.dev.AlignedBuffer()
	lsn := frame.lastWrittenLSN + 1
	encodePage(buf, &frame.Page, lsn, frame.pageID)

	frame.writeback = true
	awb.pending = append(awb.pending, writeSlot{frame: frame, pid: frame.pageID, lsn: lsn, buf: buf})
	return true
}

// Submit issues all reserved writes concurrently, bounded by capacity.
func (awb *AsyncWriteBuffer) Submit() {
	awb.mu.Lock()
	slots := awb.pending
	awb.pending = nil
	awb.inFlight += len(slots)
	awb.mu.Unlock()

	if len(slots) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(awb.capacity)
	for _, slot := range slots {
		slot := slot
		p.Go(func() {
			err := awb.dev.WritePageSync(slot.pid, slot.buf)
			awb.completions <- completion{frame: slot.frame, lsn: slot.lsn, err: err}
		})
	}
	// Submit does not wait for p — completions arrive asynchronously on the
	// channel and are observed by Poll, matching the original's
	// fire-and-forget io_submit followed by a separate pollEventsSync.
	go p.Wait()
}

// Poll waits until at least one submitted write completes or ctx is done,
// then drains any further completions already available without blocking,
// and returns the total count observed this call (0 if ctx expired first).
// Callers must only invoke this after a Submit that actually reserved
// writes — with nothing in flight and nothing pending, this otherwise
// blocks on awb.completions until ctx is done.
func (awb *AsyncWriteBuffer) Poll(ctx context.Context) int {
	select {
	case c := <-awb.completions:
		awb.mu.Lock()
		awb.drained = append(awb.drained, c)
		awb.inFlight--
		awb.mu.Unlock()
	case <-ctx.Done():
		return 0
	}
	n := 1
	for {
		select {
		case c := <-awb.completions:
			awb.mu.Lock()
			awb.drained = append(awb.drained, c)
			awb.inFlight--
			awb.mu.Unlock()
			n++
		default:
			return n
		}
	}
}

// DrainCompleted invokes visitor for the n most recently completed writes,
// guaranteeing written_lsn > frame.last_written_lsn at visit time, then
// clears them from the pending-drain buffer. The visitor is expected to
// update last_written_lsn and clear the writeback flag, per spec.md §4.5.
func (awb *AsyncWriteBuffer) DrainCompleted(n int, visitor func(frame *BufferFrame, writtenLSN LSN)) {
	awb.mu.Lock()
	if n > len(awb.drained) {
		n = len(awb.drained)
	}
	batch := awb.drained[len(awb.drained)-n:]
	awb.drained = awb.drained[:len(awb.drained)-n]
	awb.mu.Unlock()

	for _, c := range batch {
		if c.err != nil {
			// I/O failure during writeback: the frame stays dirty and in
			// writeback; the page provider will retry it on a later
			// iteration rather than losing the page.
			continue
		}
		visitor(c.frame, c.lsn)
	}
}
