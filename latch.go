package bufmgr

import (
	"sync/atomic"
)

// exclusiveBit is the low bit of a latch version: when set, the frame is
// exclusively held by a writer. This mirrors WRITE_LOCK_BIT in
// original_source/backend/leanstore/sync-primitives/OptimisticLock.hpp.
const exclusiveBit uint64 = 1

// spinMaxBackoff caps the exponential pause-loop used while waiting for an
// exclusive holder to release, matching the original's spinAsLongAs macro
// (mask doubles up to 64).
const spinMaxBackoff = 64

// Version is a snapshot of an OptimisticLatch's counter, taken by
// AcquireOptimistic and later handed to Recheck/TryUpgrade.
type Version uint64

// held reports whether the snapshot was taken while exclusively latched.
func (v Version) held() bool {
	return uint64(v)&exclusiveBit == exclusiveBit
}

// OptimisticLatch is the per-frame version counter described in spec.md
// §4.1: readers never block, they snapshot a version and later recheck it;
// writers serialize against each other with a CAS on the low bit.
type OptimisticLatch struct {
	version uint64
}

// AcquireOptimistic loads the current version, spinning (never blocking)
// while a writer holds the exclusive bit. It performs no writes, so
// unbounded numbers of concurrent optimistic readers never contend with
// each other.
func (l *OptimisticLatch) AcquireOptimistic() Version {
	v := Version(atomic.LoadUint64(&l.version))
	if !v.held() {
		return v
	}
	backoff := 1
	for {
		pauseN(backoff)
		if backoff < spinMaxBackoff {
			backoff <<= 1
		}
		v = Version(atomic.LoadUint64(&l.version))
		if !v.held() {
			return v
		}
	}
}

// Recheck compares the live version against snapshot and signals Restart on
// any mismatch — including the case where the frame is now exclusively
// held. Every piece of state derived from the read since snapshot was taken
// must be discarded by the caller.
func (l *OptimisticLatch) Recheck(snapshot Version) error {
	if atomic.LoadUint64(&l.version) != uint64(snapshot) {
		return Restart("optimistic recheck failed")
	}
	return nil
}

// TryUpgrade attempts to move from an optimistic snapshot to exclusive
// ownership via a single CAS. On success the caller owns the frame
// exclusively until ReleaseExclusive; on failure (lost the race, or version
// already moved) it signals Restart and the caller must not assume anything
// about the frame.
func (l *OptimisticLatch) TryUpgrade(snapshot Version) error {
	if snapshot.held() {
		return Restart("snapshot already exclusive")
	}
	next := uint64(snapshot) | exclusiveBit
	if !atomic.CompareAndSwapUint64(&l.version, uint64(snapshot), next) {
		return Restart("exclusive upgrade lost the CAS")
	}
	return nil
}

// TryAcquireExclusive attempts a single non-blocking CAS from unlocked to
// locked, used by phase 2/3's reclaim attempt (spec.md §4.8: "try to
// exclusively latch it; on success...").
func (l *OptimisticLatch) TryAcquireExclusive() (*ExclusiveGuard, bool) {
	v := atomic.LoadUint64(&l.version)
	if v&exclusiveBit != 0 {
		return nil, false
	}
	if !atomic.CompareAndSwapUint64(&l.version, v, v|exclusiveBit) {
		return nil, false
	}
	return &ExclusiveGuard{latch: l}, true
}

// AcquireExclusiveBlocking spins until it wins the exclusive bit, for
// callers (allocate_page) that do not have an existing optimistic snapshot
// to upgrade from.
func (l *OptimisticLatch) AcquireExclusiveBlocking() Version {
	backoff := 1
	for {
		v := atomic.LoadUint64(&l.version)
		if v&exclusiveBit == 0 {
			if atomic.CompareAndSwapUint64(&l.version, v, v|exclusiveBit) {
				return Version(v | exclusiveBit)
			}
		}
		pauseN(backoff)
		if backoff < spinMaxBackoff {
			backoff <<= 1
		}
	}
}

// ReleaseExclusive bumps the version by one, which both clears the
// exclusive bit (it is the low bit: 1 -> 0) and advances the version so
// that any optimistic reader who snapshotted during the write observes a
// mismatch on recheck.
func (l *OptimisticLatch) ReleaseExclusive() {
	atomic.AddUint64(&l.version, 1)
}

// IsExclusivelyLatched reports the current exclusive state without taking a
// snapshot; used by the page provider to skip frames that are mid-write
// before spending a guard on them (spec.md §4.8 phase 1.b).
func (l *OptimisticLatch) IsExclusivelyLatched() bool {
	return atomic.LoadUint64(&l.version)&exclusiveBit == exclusiveBit
}

// snapshotVersion exposes the raw version for diagnostics and tests.
func (l *OptimisticLatch) snapshotVersion() Version {
	return Version(atomic.LoadUint64(&l.version))
}

// OptimisticGuard bundles a latch with the snapshot taken at construction
// time, mirroring the original's ReadGuard.
type OptimisticGuard struct {
	latch    *OptimisticLatch
	snapshot Version
}

// NewOptimisticGuard acquires an optimistic read snapshot on latch.
func NewOptimisticGuard(latch *OptimisticLatch) *OptimisticGuard {
	return &OptimisticGuard{latch: latch, snapshot: latch.AcquireOptimistic()}
}

// Recheck re-validates the guard's snapshot.
func (g *OptimisticGuard) Recheck() error {
	return g.latch.Recheck(g.snapshot)
}

// Snapshot exposes the version captured at acquisition for callers that
// need to compare against it directly.
func (g *OptimisticGuard) Snapshot() Version {
	return g.snapshot
}

// Upgrade promotes this optimistic guard to an ExclusiveGuard, consuming it.
func (g *OptimisticGuard) Upgrade() (*ExclusiveGuard, error) {
	if err := g.latch.TryUpgrade(g.snapshot); err != nil {
		return nil, err
	}
	return &ExclusiveGuard{latch: g.latch}, nil
}

// ExclusiveGuard represents exclusive ownership of a latch; Release must be
// called on every exit path (including restarts). Release is idempotent, so
// a deferred Release alongside an explicit one is safe.
type ExclusiveGuard struct {
	latch     *OptimisticLatch
	released  bool
}

// AcquireExclusive blocks until it wins the latch, for call sites with no
// existing optimistic snapshot (allocate_page).
func AcquireExclusive(latch *OptimisticLatch) *ExclusiveGuard {
	latch.AcquireExclusiveBlocking()
	return &ExclusiveGuard{latch: latch}
}

// Release clears the exclusive bit and bumps the version. Safe to call
// more than once; only the first call has an effect, so defer-based release
// on a restart path that also releases explicitly on the success path never
// double-releases.
func (g *ExclusiveGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.latch.ReleaseExclusive()
}
