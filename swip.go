package bufmgr

import (
	"sync/atomic"
	"unsafe"
)

// PageID identifies a page on the device; it also serves as the unswizzled
// form of a Swip. Page 0 is reserved (FREE sentinel, spec.md §3).
type PageID uint64

// unswizzledTag is the high bit of a Swip's 64-bit word: when set, the
// remaining 63 bits are a PageID; when clear, the word is a *BufferFrame
// address. Reserving one bit is sufficient on current 64-bit platforms
// because no legitimate heap address uses the top bit (spec.md §4.2 /
// DESIGN NOTES "raw address stored inside a logical reference").
const unswizzledTag uint64 = 1 << 63

// Swip is the tagged 64-bit reference described in spec.md §4.2: swizzled,
// it is a direct in-memory *BufferFrame address (no hash lookup on the hot
// path); unswizzled, it is a PageID. Mutation is only valid under the
// locking discipline spec.md §4.2 describes (exclusive latch on the
// referencing frame, or the partition CIO mutex plus exclusive latch on the
// frame during eviction) — Swip itself does not enforce that, by design: it
// is a plain tagged word, same as the original's Swip<T>.
type Swip struct {
	raw uint64
}

// NewUnswizzledSwip builds a swip pointing at a page that has not been
// loaded (or not yet been assigned a frame).
func NewUnswizzledSwip(pid PageID) Swip {
	return Swip{raw: uint64(pid) | unswizzledTag}
}

// NewSwizzledSwip builds a swip directly addressing frame.
func NewSwizzledSwip(frame *BufferFrame) Swip {
	return Swip{raw: uint64(uintptr(unsafe.Pointer(frame)))}
}

// IsSwizzled reports whether the swip currently addresses a BufferFrame.
func (s Swip) IsSwizzled() bool {
	return s.raw&unswizzledTag == 0
}

// AsPageID returns the encoded page ID; only defined when !IsSwizzled().
func (s Swip) AsPageID() PageID {
	if s.IsSwizzled() {
		fatalf("AsPageID called on a swizzled swip")
	}
	return PageID(s.raw &^ unswizzledTag)
}

// AsFrame returns the addressed frame; only defined when IsSwizzled().
func (s Swip) AsFrame() *BufferFrame {
	if !s.IsSwizzled() {
		fatalf("AsFrame called on an unswizzled swip")
	}
	return (*BufferFrame)(unsafe.Pointer(uintptr(s.raw)))
}

// AtomicSwip is a Swip stored behind an atomic word, used for the inner
// swips inside page payloads and for the swip a parent holds to a child —
// both are mutated concurrently with optimistic readers walking past them.
type AtomicSwip struct {
	raw uint64
}

// Load reads the current value without synchronizing with a latch; callers
// are expected to be holding (or have just rechecked) the appropriate
// optimistic guard per spec.md §4.2.
func (a *AtomicSwip) Load() Swip {
	return Swip{raw: atomic.LoadUint64(&a.raw)}
}

// Swizzle installs a direct frame pointer. Must only be called while the
// page containing this swip is exclusively latched (inner swip) or while
// holding both the partition's CIO mutex and an exclusive latch on the
// referencing frame (parent swip during eviction install), per spec.md
// §4.2.
func (a *AtomicSwip) Swizzle(frame *BufferFrame) {
	atomic.StoreUint64(&a.raw, uint64(uintptr(unsafe.Pointer(frame))))
}

// Unswizzle replaces the stored frame pointer with a page ID, under the
// same locking discipline as Swizzle.
func (a *AtomicSwip) Unswizzle(pid PageID) {
	atomic.StoreUint64(&a.raw, uint64(pid)|unswizzledTag)
}

// Store overwrites the swip outright; used when initializing a fresh slot.
func (a *AtomicSwip) Store(s Swip) {
	atomic.StoreUint64(&a.raw, s.raw)
}
