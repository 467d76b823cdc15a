package bufmgr

import (
	"io"
	"os"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
)

// BlockDevice is the minimal random-access surface ReadPageSync/writeback
// need. *os.File opened via directio.OpenFile satisfies it for production
// use; tests substitute github.com/dsnet/golib/memfile's in-memory file so
// the round-trip and eviction tests in spec.md §8 don't require a real
// O_DIRECT-capable filesystem.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Device wraps a BlockDevice with the page-aligned, fixed-size-page access
// pattern spec.md §6 describes: "Page p resides at offset p*PAGE_SIZE... a
// flat array of pages indexed by page ID."
type Device struct {
	file     BlockDevice
	pageSize uint32
}

// OpenDevice opens path for unbuffered, aligned, synchronous I/O via
// directio.OpenFile — this project's one teacher-inherited dependency for
// the job, ncw/directio (also used, transitively, by the teacher's external
// SamehadaDB collaborator). truncate mirrors spec.md §6's `truncate` option.
func OpenDevice(path string, pageSize uint32, truncate bool) (*Device, error) {
	flags := os.O_RDWR | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := directio.OpenFile(path, flags, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "bufmgr: open device %q", path)
	}
	return &Device{file: f, pageSize: pageSize}, nil
}

// OpenDeviceOn adapts an already-open BlockDevice (typically a memfile.File
// in tests) instead of opening a path.
func OpenDeviceOn(dev BlockDevice, pageSize uint32) *Device {
	return &Device{file: dev, pageSize: pageSize}
}

// AlignedBuffer allocates a page-sized buffer aligned to directio.AlignSize
// (spec.md §6: "aligned buffers are required (512-byte alignment
// minimum)"), suitable for both the synchronous read path and the
// AsyncWriteBuffer's reserved write slots.
func (d *Device) AlignedBuffer() []byte {
	return directio.AlignedBlock(int(d.pageSize))
}

// ReadPageSync reads page pid into dst synchronously, looping on short
// reads exactly as spec.md §7 requires ("short reads loop until the full
// page is transferred") and as the original's readPageSync does
// (original_source/.../BufferManager.cpp).
func (d *Device) ReadPageSync(pid PageID, dst []byte) error {
	offset := int64(pid) * int64(d.pageSize)
	var read int
	for read < len(dst) {
		n, err := d.file.ReadAt(dst[read:], offset+int64(read))
		if n > 0 {
			read += n
		}
		if err != nil {
			if err == io.EOF && read == len(dst) {
				break
			}
			return wrapIOErr("read", pid, err)
		}
	}
	return nil
}

// WritePageSync writes src to page pid's offset; used by FlushAndStop's
// synchronous flush and by each AsyncWriteBuffer writer goroutine.
func (d *Device) WritePageSync(pid PageID, src []byte) error {
	offset := int64(pid) * int64(d.pageSize)
	var written int
	for written < len(src) {
		n, err := d.file.WriteAt(src[written:], offset+int64(written))
		if n > 0 {
			written += n
		}
		if err != nil {
			return wrapIOErr("write", pid, err)
		}
	}
	return nil
}

// Sync flushes any OS-buffered state (a no-op for true O_DIRECT I/O, but
// memfile-backed test devices and partially-direct platforms still benefit)
func (d *Device) Sync() error {
	return d.file.Sync()
}

// Close releases the underlying file descriptor.
func (d *Device) Close() error {
	return d.file.Close()
}
