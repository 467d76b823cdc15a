package bufmgr

// State is the lifecycle stage of a BufferFrame, spec.md §3: a frame is
// created once at startup and cycles FREE -> HOT -> COLD -> FREE forever
// after. LOADED is a transient state that only exists inside the
// swip-resolution critical section (spec.md §3 "Lifecycles").
type State uint8

const (
	StateFree State = iota
	StateHot
	StateCold
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateHot:
		return "HOT"
	case StateCold:
		return "COLD"
	case StateLoaded:
		return "LOADED"
	default:
		return "UNKNOWN"
	}
}

// LSN is a log sequence number; the buffer manager only tracks the LSN of
// the last successful writeback (spec.md §3), the WAL itself is out of
// scope.
type LSN uint64

// DTID identifies a registered data-structure instance (spec.md §4.9); a
// page's header carries the DTID of the instance it belongs to so the page
// provider and resolve path can dispatch to the right DTRegistry.
type DTID uint32

// PageHeader is the on-device and in-memory header of a page, spec.md §6:
// "a magic number equal to the page ID (used as a sanity check on read),
// plus an LSN field."
type PageHeader struct {
	Magic PageID
	LSN   LSN
	DTID  DTID
}

// Page is the fixed-size payload addressed by a BufferFrame. Size is
// configured (a power of two, spec.md §6); Data is sized to
// PageSize-headerWireSize bytes (the 20-byte on-device header, codec.go) of
// structure-specific content that the
// DTRegistry's owning data structure (e.g. a B-tree node) interprets.
type Page struct {
	Header PageHeader
	Data   []byte
}

// BufferFrame owns exactly one Page plus the header described in spec.md
// §3: an optimistic latch, page ID (0 if FREE), state, dirty/writeback
// bits, last_written_lsn, and the "cooled because of reading" flag.
type BufferFrame struct {
	Latch OptimisticLatch

	pageID PageID
	state  State

	dirty      bool
	writeback  bool
	cooledByRead bool

	lastWrittenLSN LSN

	Page Page
}

// PageID returns the frame's current page ID (0 if FREE).
func (bf *BufferFrame) PageID() PageID { return bf.pageID }

// State returns the frame's current lifecycle state.
func (bf *BufferFrame) State() State { return bf.state }

// IsDirty reports whether the page content differs from what is on device.
func (bf *BufferFrame) IsDirty() bool { return bf.dirty }

// IsWriteback reports whether the frame has an outstanding async write.
func (bf *BufferFrame) IsWriteback() bool { return bf.writeback }

// CooledBecauseOfReading reports the flag set when a page-in installer
// failed to rewire the parent swip and instead handed the frame straight to
// the cooling queue (spec.md §4.6, the "Absent" slow path's try-upgrade
// failure branch).
func (bf *BufferFrame) CooledBecauseOfReading() bool { return bf.cooledByRead }

// LastWrittenLSN returns the LSN of the most recent completed writeback.
func (bf *BufferFrame) LastWrittenLSN() LSN { return bf.lastWrittenLSN }

// MarkDirty flags the frame's payload as needing a future writeback; must
// be called while the frame is exclusively latched.
func (bf *BufferFrame) MarkDirty() { bf.dirty = true }

// reset clears a frame back to its FREE defaults; called under the
// frame's exclusive latch right before it is pushed to a FreeList
// (spec.md §4.8 phase 2/3 "return it to the FreeList").
func (bf *BufferFrame) reset() {
	bf.pageID = 0
	bf.state = StateFree
	bf.dirty = false
	bf.writeback = false
	bf.cooledByRead = false
	bf.lastWrittenLSN = 0
	bf.Page.Header = PageHeader{}
}
