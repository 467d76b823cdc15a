package bufmgr

import (
	"testing"

	"github.com/dsnet/golib/memfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDevice adapts memfile.File (an in-memory stand-in for a real device
// file, used so these tests don't require an O_DIRECT-capable filesystem)
// to the BlockDevice interface; memfile.File itself has no reason to carry
// an fsync concept, so Sync is a no-op here.
type memDevice struct {
	*memfile.File
}

func (memDevice) Sync() error { return nil }

func newMemDevice(pageSize uint32, pages int) *Device {
	f := memfile.New(make([]byte, int(pageSize)*pages))
	return OpenDeviceOn(memDevice{f}, pageSize)
}

func TestDevice_WriteThenReadPageSyncRoundTrip(t *testing.T) {
	const pageSize = 4096
	dev := newMemDevice(pageSize, 4)

	want := dev.AlignedBuffer()
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, dev.WritePageSync(PageID(2), want))

	got := dev.AlignedBuffer()
	require.NoError(t, dev.ReadPageSync(PageID(2), got))
	assert.Equal(t, want, got)
}

func TestDevice_DistinctPagesDoNotOverlap(t *testing.T) {
	const pageSize = 4096
	dev := newMemDevice(pageSize, 4)

	a := dev.AlignedBuffer()
	for i := range a {
		a[i] = 0xAA
	}
	b := dev.AlignedBuffer()
	for i := range b {
		b[i] = 0xBB
	}
	require.NoError(t, dev.WritePageSync(PageID(0), a))
	require.NoError(t, dev.WritePageSync(PageID(1), b))

	gotA := dev.AlignedBuffer()
	require.NoError(t, dev.ReadPageSync(PageID(0), gotA))
	gotB := dev.AlignedBuffer()
	require.NoError(t, dev.ReadPageSync(PageID(1), gotB))

	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)
	assert.NotEqual(t, gotA, gotB)
}

func TestCodec_EncodeDecodeRoundTrip(t *testing.T) {
	page := &Page{
		Header: PageHeader{DTID: 7},
		Data:   []byte("hello leanbufmgr"),
	}
	buf := make([]byte, headerWireSize+len(page.Data))
	encodePage(buf, page, LSN(99), PageID(3))

	decoded := Page{Data: make([]byte, len(page.Data))}
	decodePage(buf, &decoded)

	assert.Equal(t, PageID(3), decoded.Header.Magic)
	assert.Equal(t, LSN(99), decoded.Header.LSN)
	assert.Equal(t, DTID(7), decoded.Header.DTID)
	assert.Equal(t, page.Data, decoded.Data)
}
