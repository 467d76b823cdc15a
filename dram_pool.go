package bufmgr

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// dramPool is the single contiguous allocation of N BufferFrames described
// in spec.md §3 ("DRAM pool"). It is backed by an anonymous mmap advised
// huge-page and fork-excluded, translating
// original_source/backend/leanstore/storage/buffer-manager/BufferManager.cpp's
//
//	bfs = mmap(..., PROT_READ|PROT_WRITE, MAP_PRIVATE|MAP_ANONYMOUS, -1, 0);
//	madvise(bfs, ..., MADV_HUGEPAGE);
//	madvise(bfs, ..., MADV_DONTFORK);  // O_DIRECT does not work with forking.
//
// via golang.org/x/sys/unix, grounded the same way the pack's uffd helpers
// (other_examples/ehrlich-b-go-ublk, dsmmcken-dh-cli) drive raw mmap/madvise.
//
// Go's garbage collector never scans mapping for pointers, which means any
// ordinary Go-heap allocation reachable only from inside it (e.g. a page's
// payload slice, if it were allocated with make()) is invisible to the GC
// and can be collected out from under a frame that is still using it. To
// keep every byte a BufferFrame addresses off the GC-scanned heap, data is
// a second mmap'd region holding every frame's Page.Data payload
// contiguously; frames is carved from mapping the same way, and no
// BufferFrame ever points at a make()'d byte slice.
type dramPool struct {
	mapping []byte
	data    []byte
	frames  []BufferFrame
}

// newDRAMPool mmaps enough bytes for n BufferFrames (plus a small safety
// prefix, per spec.md §3) and a second mapping for their page payloads
// (pageSize-headerWireSize bytes each), wiring each frame's Page.Data to
// its slice of the data mapping before any caller ever sees the frame.
func newDRAMPool(n int, pageSize uint32) (*dramPool, error) {
	frameSize := int(unsafe.Sizeof(BufferFrame{}))
	const safetyFrames = 8 // unused frames placed ahead of the frame array
	total := frameSize * (n + safetyFrames)

	mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "bufmgr: mmap DRAM pool")
	}
	_ = unix.Madvise(mapping, unix.MADV_HUGEPAGE)
	_ = unix.Madvise(mapping, unix.MADV_DONTFORK)

	dataSize := int(pageSize) - headerWireSize
	dataTotal := dataSize * n
	data, err := unix.Mmap(-1, 0, dataTotal, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		_ = unix.Munmap(mapping)
		return nil, errors.Wrap(err, "bufmgr: mmap DRAM pool page data")
	}
	_ = unix.Madvise(data, unix.MADV_HUGEPAGE)
	_ = unix.Madvise(data, unix.MADV_DONTFORK)

	frames := unsafe.Slice((*BufferFrame)(unsafe.Pointer(&mapping[safetyFrames*frameSize])), n)
	for i := range frames {
		frames[i] = BufferFrame{}
		frames[i].Page.Data = data[i*dataSize : (i+1)*dataSize : (i+1)*dataSize]
	}

	return &dramPool{mapping: mapping, data: data, frames: frames}, nil
}

// close unmaps the pool; called once at shutdown (spec.md §5 "The DRAM pool
// is process-wide and never resized").
func (p *dramPool) close() error {
	if err := unix.Munmap(p.data); err != nil {
		return err
	}
	return unix.Munmap(p.mapping)
}
