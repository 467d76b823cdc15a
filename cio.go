package bufmgr

import (
	"container/list"
	"sync"
)

// CIOState is the phase of an in-flight page tracked by a partition's CIO
// table (spec.md §4.4): READING while a worker is performing the blocking
// device read, COOLING once the frame has been unswizzled and parked on
// the cooling queue.
type CIOState uint8

const (
	CIOReading CIOState = iota
	CIOCooling
)

// CIOEntry is one entry of a partition's CIO hash table, keyed by page ID.
// In the READING state it carries the target frame and a mutex held by the
// installing reader from insertion until installation (spec.md §4.4); in
// the COOLING state it carries a stable iterator into the cooling queue.
type CIOEntry struct {
	State CIOState

	frame *BufferFrame

	// mu is held by the worker performing the blocking device read from the
	// moment the entry is inserted until it either installs the frame or
	// hands it to the cooling queue; other workers resolving the same page
	// id block on mu.Lock()/Unlock() to wait for that to happen (spec.md
	// §4.6 "Present, READING").
	mu            sync.Mutex
	readersWaiting int

	// elem is non-nil only in the COOLING state: a stable *list.Element
	// into the partition's cooling queue. container/list is the stdlib
	// analog of the original's std::list<BufferFrame*> — no pack library
	// offers an intrusive doubly-linked list with O(1) arbitrary-position
	// erase and stable iterators, which is exactly what spec.md §4.4
	// requires ("iterators remain stable until their entry is erased").
	elem *list.Element
}

// coolingQueue is the FIFO of COLD frames for one partition, oldest first
// (spec.md §4.4). It is always mutated under the owning partition's mutex.
type coolingQueue struct {
	l *list.List
}

func newCoolingQueue() *coolingQueue {
	return &coolingQueue{l: list.New()}
}

// pushBack appends frame to the tail (newest) and returns the element the
// CIOEntry should remember.
func (q *coolingQueue) pushBack(frame *BufferFrame) *list.Element {
	return q.l.PushBack(frame)
}

// front returns the oldest element, or nil if empty.
func (q *coolingQueue) front() *list.Element {
	return q.l.Front()
}

// erase removes e from the queue in O(1).
func (q *coolingQueue) erase(e *list.Element) {
	q.l.Remove(e)
}

func (q *coolingQueue) len() int {
	return q.l.Len()
}

func frameOf(e *list.Element) *BufferFrame {
	return e.Value.(*BufferFrame)
}

// cioTable is the per-partition hash table keyed by page ID, spec.md §4.4.
// All mutation happens under the owning Partition's mutex; it is a plain
// Go map rather than a third-party hash table because Go's builtin map
// already gives O(1) average lookup/insert/delete and the pack carries no
// library implementing a better fit for "keyed lookup from page ID to an
// in-flight or cold entry" under an external mutex.
type cioTable struct {
	entries map[PageID]*CIOEntry
}

func newCIOTable() *cioTable {
	return &cioTable{entries: make(map[PageID]*CIOEntry)}
}

func (t *cioTable) lookup(pid PageID) (*CIOEntry, bool) {
	e, ok := t.entries[pid]
	return e, ok
}

func (t *cioTable) insert(pid PageID, e *CIOEntry) {
	t.entries[pid] = e
}

func (t *cioTable) remove(pid PageID) {
	delete(t.entries, pid)
}

func (t *cioTable) has(pid PageID) bool {
	_, ok := t.entries[pid]
	return ok
}
