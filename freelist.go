package bufmgr

import (
	"sync"
	"sync/atomic"

	"github.com/devlights/gomy/containers"
)

// FreeList is the per-partition stack of unused frames described in
// spec.md §4.3. The original LeanStore implements this as a raw
// CAS-on-head Treiber stack (Partition::dram_free_list in
// original_source/.../BufferManager.cpp: "partitions[p_i].dram_free_list.push(...)").
// Go has no safe idiomatic equivalent of that without reinterpreting
// pointers through unsafe.Pointer tagged CAS, which buys nothing once the
// container is already behind a mutex for Pop; we use `gomy`'s generic
// Stack as the LIFO container and a mutex to serialize mutation, keeping
// the counter atomic so readers (the page-provider's phase conditions) can
// observe it without contending with pushers/poppers at all.
type FreeList struct {
	mu      sync.Mutex
	stack   *containers.Stack[*BufferFrame]
	counter int64
}

// NewFreeList returns an empty free list.
func NewFreeList() *FreeList {
	return &FreeList{stack: containers.NewStack[*BufferFrame]()}
}

// Push returns frame to the free list. Safe to call whether or not the
// caller holds the partition mutex: the frame must already be exclusively
// owned by the caller (reset to FREE) so no other goroutine can observe it
// mid-push, which is the property spec.md §4.3 calls "lock-free push when
// the caller already owns a frame exclusively."
func (fl *FreeList) Push(frame *BufferFrame) {
	fl.mu.Lock()
	fl.stack.Push(frame)
	fl.mu.Unlock()
	atomic.AddInt64(&fl.counter, 1)
}

// Pop removes and returns a frame, blocking (spinning, never parking) while
// the list is empty. Used by AllocatePage, which holds no partition mutex.
func (fl *FreeList) Pop() *BufferFrame {
	backoff := 1
	for {
		if f, ok := fl.tryPopLocked(); ok {
			return f
		}
		pauseN(backoff)
		if backoff < spinMaxBackoff {
			backoff <<= 1
		}
	}
}

// TryPop is the non-blocking variant spec.md §4.3 requires for a caller
// that already holds the partition mutex: resolve's miss path calls this so
// that an empty free list surfaces as a Restart rather than blocking while
// the partition is locked.
func (fl *FreeList) TryPop() (*BufferFrame, error) {
	frame, ok := fl.tryPopLocked()
	if !ok {
		return nil, Restart("free list empty")
	}
	return frame, nil
}

func (fl *FreeList) tryPopLocked() (*BufferFrame, bool) {
	fl.mu.Lock()
	frame, ok := fl.stack.Pop()
	fl.mu.Unlock()
	if ok {
		atomic.AddInt64(&fl.counter, -1)
	}
	return frame, ok
}

// Count returns the current number of free frames, read without locking —
// this backs the page provider's phase 1/2 threshold checks
// (free_count + cooling_count < cooling_upper_bound, spec.md §4.8) which
// must never block behind the mutation path.
func (fl *FreeList) Count() int64 {
	return atomic.LoadInt64(&fl.counter)
}
