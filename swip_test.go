package bufmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwip_UnswizzledRoundTrip(t *testing.T) {
	s := NewUnswizzledSwip(PageID(42))
	assert.False(t, s.IsSwizzled())
	assert.Equal(t, PageID(42), s.AsPageID())
}

func TestSwip_SwizzledRoundTrip(t *testing.T) {
	frame := &BufferFrame{}
	s := NewSwizzledSwip(frame)
	assert.True(t, s.IsSwizzled())
	assert.Same(t, frame, s.AsFrame())
}

func TestSwip_AsPageIDPanicsWhenSwizzled(t *testing.T) {
	frame := &BufferFrame{}
	s := NewSwizzledSwip(frame)
	assert.Panics(t, func() { s.AsPageID() })
}

func TestSwip_AsFramePanicsWhenUnswizzled(t *testing.T) {
	s := NewUnswizzledSwip(PageID(7))
	assert.Panics(t, func() { s.AsFrame() })
}

func TestAtomicSwip_SwizzleUnswizzleStore(t *testing.T) {
	var a AtomicSwip
	frame := &BufferFrame{}

	a.Store(NewUnswizzledSwip(PageID(1)))
	require.False(t, a.Load().IsSwizzled())

	a.Swizzle(frame)
	require.True(t, a.Load().IsSwizzled())
	assert.Same(t, frame, a.Load().AsFrame())

	a.Unswizzle(PageID(9))
	require.False(t, a.Load().IsSwizzled())
	assert.Equal(t, PageID(9), a.Load().AsPageID())
}
