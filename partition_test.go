package bufmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition_Phase1ConditionTracksFreeAndCoolingCounts(t *testing.T) {
	p := newPartition(0, /* freeLowerBound */ 2, /* coolingUpperBound */ 4)
	assert.True(t, p.phase1Condition(), "0 free + 0 cooling < 4")

	p.Free.Push(&BufferFrame{pageID: 1})
	p.Free.Push(&BufferFrame{pageID: 2})
	p.Free.Push(&BufferFrame{pageID: 3})
	p.Free.Push(&BufferFrame{pageID: 4})
	assert.False(t, p.phase1Condition(), "4 free + 0 cooling is not < 4")
}

func TestPartition_Phase23ConditionTracksFreeLowerBound(t *testing.T) {
	p := newPartition(0, 2, 4)
	assert.True(t, p.phase23Condition(), "0 free < 2")

	p.Free.Push(&BufferFrame{pageID: 1})
	p.Free.Push(&BufferFrame{pageID: 2})
	assert.False(t, p.phase23Condition(), "2 free is not < 2")
}

func TestPartition_InsertAndRemoveCooling(t *testing.T) {
	p := newPartition(0, 2, 4)
	frame := &BufferFrame{pageID: 10}

	entry := p.insertCooling(frame)
	assert.EqualValues(t, 1, p.CoolingCount())
	got, ok := p.cio.lookup(frame.pageID)
	require.True(t, ok)
	assert.Same(t, entry, got)
	assert.Same(t, frame, frameOf(p.cooling.front()))

	p.removeCooling(frame.pageID, entry)
	assert.EqualValues(t, 0, p.CoolingCount())
	_, ok = p.cio.lookup(frame.pageID)
	assert.False(t, ok)
}

func TestCoolingQueue_FIFOOrderAndO1Erase(t *testing.T) {
	q := newCoolingQueue()
	a := &BufferFrame{pageID: 1}
	b := &BufferFrame{pageID: 2}
	c := &BufferFrame{pageID: 3}

	ea := q.pushBack(a)
	q.pushBack(b)
	ec := q.pushBack(c)

	assert.Equal(t, 3, q.len())
	assert.Same(t, a, frameOf(q.front()))

	q.erase(ea)
	assert.Equal(t, 2, q.len())
	assert.Same(t, b, frameOf(q.front()), "erasing the head must leave FIFO order on the remainder")

	q.erase(ec)
	assert.Equal(t, 1, q.len())
	assert.Same(t, b, frameOf(q.front()))
}

func TestCIOTable_InsertLookupRemove(t *testing.T) {
	table := newCIOTable()
	entry := &CIOEntry{State: CIOReading}

	table.insert(PageID(3), entry)
	assert.True(t, table.has(PageID(3)))

	got, ok := table.lookup(PageID(3))
	require.True(t, ok)
	assert.Same(t, entry, got)

	table.remove(PageID(3))
	assert.False(t, table.has(PageID(3)))
}
