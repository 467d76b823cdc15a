//go:build linux

package bufmgr

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCPU best-effort binds the calling goroutine's underlying OS thread to
// cpu, the Go analogue of the original's pthread_setaffinity_np call in its
// page-provider thread setup. Go has no API to pin a goroutine itself (the
// scheduler may still migrate it between affinity syscalls), so this only
// narrows the OS thread it happens to be running on at call time; callers
// gate it behind cfg.ElevatePriority because it is a best-effort nicety, not
// a correctness requirement of the eviction pipeline. A failure is not fatal
// and is silently ignored, mirroring the original's fire-and-forget usage.
func pinToCPU(cpu int) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(0, &set)
}
