package bufmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncWriteBuffer_AddRespectsCapacity(t *testing.T) {
	dev := newMemDevice(4096, 8)
	awb := NewAsyncWriteBuffer(dev, 2)

	f1 := &BufferFrame{pageID: 1, dirty: true, Page: Page{Data: make([]byte, 4096-headerWireSize)}}
	f2 := &BufferFrame{pageID: 2, dirty: true, Page: Page{Data: make([]byte, 4096-headerWireSize)}}
	f3 := &BufferFrame{pageID: 3, dirty: true, Page: Page{Data: make([]byte, 4096-headerWireSize)}}

	assert.True(t, awb.Add(f1))
	assert.True(t, awb.Add(f2))
	assert.False(t, awb.Add(f3), "batch is at capacity")
	assert.True(t, f1.writeback)
}

func TestAsyncWriteBuffer_SubmitPollDrainCompletesWrites(t *testing.T) {
	dev := newMemDevice(4096, 8)
	awb := NewAsyncWriteBuffer(dev, 4)

	frames := []*BufferFrame{
		{pageID: 1, dirty: true, Page: Page{Data: make([]byte, 4096-headerWireSize)}},
		{pageID: 2, dirty: true, Page: Page{Data: make([]byte, 4096-headerWireSize)}},
		{pageID: 3, dirty: true, Page: Page{Data: make([]byte, 4096-headerWireSize)}},
	}
	for _, f := range frames {
		require.True(t, awb.Add(f))
	}

	awb.Submit()
	// Poll returns once at least one write has completed, so keep polling
	// until every submitted write has been observed.
	completed := 0
	for completed < len(frames) {
		completed += awb.Poll(context.Background())
	}
	assert.Equal(t, len(frames), completed)

	var visited int
	awb.DrainCompleted(completed, func(frame *BufferFrame, lsn LSN) {
		visited++
		frame.lastWrittenLSN = lsn
		frame.dirty = false
		frame.writeback = false
	})
	assert.Equal(t, len(frames), visited)

	for _, f := range frames {
		assert.False(t, f.dirty)
		assert.False(t, f.writeback)
		assert.Equal(t, LSN(1), f.lastWrittenLSN)
	}
}
