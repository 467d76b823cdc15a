package bufmgr

import "encoding/binary"

// headerWireSize is the on-device size of a PageHeader: Magic (8) + LSN (8)
// + DTID (4), spec.md §6 "Page header on device: a magic number equal to
// the page ID... plus an LSN field."
const headerWireSize = 8 + 8 + 4

// encodePage serializes page's header (with writtenLSN and magic=pid
// substituted, since the caller is about to write it back under a new LSN)
// followed by its data into buf, which must be at least PageSize bytes.
func encodePage(buf []byte, page *Page, writtenLSN LSN, pid PageID) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(pid))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(writtenLSN))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(page.Header.DTID))
	copy(buf[headerWireSize:], page.Data)
}

// decodePage parses buf (as read from the device) into page, returning the
// decoded header for the magic-number sanity check described in spec.md §6.
// page.Data must already be sized len(buf)-headerWireSize — every
// BufferFrame's Page.Data is carved once from the DRAM pool's mmap'd data
// region at startup (dram_pool.go) and is never reallocated on the Go heap,
// so decodePage only ever copies into it.
func decodePage(buf []byte, page *Page) {
	page.Header.Magic = PageID(binary.LittleEndian.Uint64(buf[0:8]))
	page.Header.LSN = LSN(binary.LittleEndian.Uint64(buf[8:16]))
	page.Header.DTID = DTID(binary.LittleEndian.Uint32(buf[16:20]))
	copy(page.Data, buf[headerWireSize:])
}
