package bufmgr

import "sync/atomic"

// atomicStoreRunning stores a bool into an int32 flag, the Go stand-in for
// the original's std::atomic<bool> bg_threads_keep_running.
func atomicStoreRunning(ptr *int32, running bool) {
	var v int32
	if running {
		v = 1
	}
	atomic.StoreInt32(ptr, v)
}

// atomicLoadRunning reads the flag atomicStoreRunning writes.
func atomicLoadRunning(ptr *int32) bool {
	return atomic.LoadInt32(ptr) != 0
}
