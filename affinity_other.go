//go:build !linux

package bufmgr

// pinToCPU is a no-op outside Linux; SchedSetaffinity has no portable
// equivalent and ElevatePriority is documented (SPEC_FULL.md) as best-effort.
func pinToCPU(cpu int) {}
