package bufmgr

import "runtime"

// pauseN spins n times yielding the processor, the Go equivalent of the
// original's `for (u32 i = mask; i; --i) { _mm_pause(); }` backoff loop
// (original_source/.../OptimisticLock.hpp, spinAsLongAs). Go has no portable
// intrinsic for the x86 PAUSE instruction, so runtime.Gosched is the
// idiomatic stand-in: it yields the scheduler instead of busy-spinning the
// physical core to the exclusion of other goroutines.
func pauseN(n int) {
	for i := 0; i < n; i++ {
		runtime.Gosched()
	}
}
