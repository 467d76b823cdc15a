// Package demotree is a minimal multiway tree wired directly against
// bufmgr.BufferFrame/bufmgr.AtomicSwip, playing the role the teacher
// project's ParentBufMgrDummy/ParentPageDummy pair played: "store data in
// memory only and don't manage memory usage" (the teacher's own comment on
// parent_buf_mgr_dummy.go). It exists to give bufmgr.DataStructure a
// concrete, exercisable implementation for tests and the cmd/bufmgrd
// harness — not a real indexing structure.
package demotree

import (
	"sync"

	"github.com/ryogrid/leanbufmgr"
	"github.com/ryogrid/leanbufmgr/interfaces"
)

// MaxChildren bounds how many child swips one node tracks, a fixture
// simplification: a real implementation would size this from the page's
// configured PageSize.
const MaxChildren = 16

// node is the demo tree's own bookkeeping for one allocated frame: its own
// children (by swip) and a back-pointer to its parent slot, maintained
// entirely in Go-heap memory rather than inside the page payload bytes —
// deliberately, since the fixture's job is to exercise IterateChildSwips/
// FindParent, not to demonstrate an on-device node layout.
type node struct {
	frame *bufmgr.BufferFrame

	mu       sync.Mutex
	children []*bufmgr.AtomicSwip

	parent     *node
	parentSlot *bufmgr.AtomicSwip
}

// Tree is a DataStructure instance: a root node plus a registry from frame
// to node so IterateChildSwips/FindParent can answer in O(1).
type Tree struct {
	mu    sync.RWMutex
	nodes map[*bufmgr.BufferFrame]*node

	mgr  *bufmgr.BufferManager
	dtID bufmgr.DTID

	root *node
}

// TypeTag is the DTType this package registers under; New passes it to
// RegisterDataStructureType before registering its instance.
const TypeTag interfaces.DTType = 1

// New allocates a fresh root page through mgr and returns a Tree rooted at
// it. New registers both TypeTag (bound to the new Tree, replacing any
// earlier binding of that tag) and the Tree's instance itself; the caller
// does not register anything first.
func New(mgr *bufmgr.BufferManager) *Tree {
	t := &Tree{
		mgr:   mgr,
		nodes: make(map[*bufmgr.BufferFrame]*node),
	}
	mgr.RegisterDataStructureType(TypeTag, t)
	t.dtID = mgr.RegisterDataStructureInstance(TypeTag, "demotree")

	frame, guard := mgr.AllocatePage()
	frame.Page.Header.DTID = t.dtID
	root := &node{frame: frame}
	t.mu.Lock()
	t.nodes[frame] = root
	t.root = root
	t.mu.Unlock()
	guard.Release()

	return t
}

// RootSwip returns a swip directly addressing the root frame, for a caller
// (typically a test) that wants to start a traversal the way a real
// database's catalog entry would.
func (t *Tree) RootSwip() bufmgr.Swip {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return bufmgr.NewSwizzledSwip(t.root.frame)
}

// NewChild allocates a page, links it as a new child of parent (which must
// be a frame this Tree already owns; NewChild takes no latch on parent and
// records the link under the node's own mutex), and returns the child's
// frame and exclusive guard for the caller to populate and release.
func (t *Tree) NewChild(parent *bufmgr.BufferFrame) (*bufmgr.BufferFrame, *bufmgr.ExclusiveGuard) {
	t.mu.Lock()
	parentNode, ok := t.nodes[parent]
	if !ok {
		t.mu.Unlock()
		panic("demotree: NewChild called on an unknown frame")
	}
	t.mu.Unlock()

	childFrame, guard := t.mgr.AllocatePage()
	childFrame.Page.Header.DTID = t.dtID

	slot := &bufmgr.AtomicSwip{}
	slot.Store(bufmgr.NewSwizzledSwip(childFrame))

	child := &node{frame: childFrame, parent: parentNode, parentSlot: slot}

	parentNode.mu.Lock()
	parentNode.children = append(parentNode.children, slot)
	parentNode.mu.Unlock()

	t.mu.Lock()
	t.nodes[childFrame] = child
	t.mu.Unlock()

	return childFrame, guard
}

// IterateChildSwips implements bufmgr.DataStructure.
func (t *Tree) IterateChildSwips(frame *bufmgr.BufferFrame, visit func(swip *bufmgr.AtomicSwip) bool) error {
	t.mu.RLock()
	n, ok := t.nodes[frame]
	t.mu.RUnlock()
	if !ok {
		return bufmgr.Restart("demotree: IterateChildSwips on unknown frame")
	}

	n.mu.Lock()
	children := append([]*bufmgr.AtomicSwip(nil), n.children...)
	n.mu.Unlock()

	for _, c := range children {
		if !visit(c) {
			break
		}
	}
	return nil
}

// FindParent implements bufmgr.DataStructure.
func (t *Tree) FindParent(frame *bufmgr.BufferFrame) (*bufmgr.OptimisticGuard, *bufmgr.BufferFrame, *bufmgr.AtomicSwip, error) {
	t.mu.RLock()
	n, ok := t.nodes[frame]
	t.mu.RUnlock()
	if !ok {
		return nil, nil, nil, bufmgr.Restart("demotree: FindParent on unknown frame")
	}
	if n.parent == nil {
		return nil, nil, nil, bufmgr.Restart("demotree: frame is the tree root, it has no parent")
	}

	parentFrame := n.parent.frame
	guard := bufmgr.NewOptimisticGuard(&parentFrame.Latch)
	return guard, parentFrame, n.parentSlot, nil
}

// Forget drops frame's bookkeeping once it has been evicted/reclaimed, so
// the registry does not grow unboundedly across a long-running process.
func (t *Tree) Forget(frame *bufmgr.BufferFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, frame)
}
