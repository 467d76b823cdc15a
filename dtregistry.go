package bufmgr

import (
	"sync"

	"github.com/ryogrid/leanbufmgr/interfaces"
)

// DataStructure is the per-type vtable spec.md §4.9 describes. Page
// providers and the resolve path never know about B-trees or any other
// concrete structure; they only ever call through this interface, indexed
// by the DTID stored in a page's header.
type DataStructure interface {
	// IterateChildSwips visits every swip stored inside frame's page,
	// stopping early if visit returns false. Implementations must be safe
	// to call while the caller only holds an optimistic guard on frame —
	// they should read swips via AtomicSwip.Load and let the caller's
	// Recheck catch any torn read.
	IterateChildSwips(frame *BufferFrame, visit func(swip *AtomicSwip) bool) error

	// FindParent locates frame's parent, returning an optimistic guard over
	// the parent frame and a pointer to the exact swip slot inside it that
	// addresses frame. It must not deadlock with an ongoing resolve of the
	// same page and may itself return a RestartError.
	FindParent(frame *BufferFrame) (parentGuard *OptimisticGuard, parentFrame *BufferFrame, swip *AtomicSwip, err error)
}

// dtInstance pairs a registered instance with the type it was registered
// under and a human-readable name (spec.md §6:
// register_instance(type_tag, root, name) -> dt_id).
type dtInstance struct {
	typeTag interfaces.DTType
	impl    DataStructure
	name    string
}

// DTRegistry is the concrete registry the BufferManager holds: a map from
// type tag to implementation, and a map from instance id to the specific
// instance a page's DTID addresses.
type DTRegistry struct {
	mu sync.RWMutex

	types     map[interfaces.DTType]DataStructure
	instances map[DTID]*dtInstance
	nextID    DTID
}

// NewDTRegistry returns an empty registry.
func NewDTRegistry() *DTRegistry {
	return &DTRegistry{
		types:     make(map[interfaces.DTType]DataStructure),
		instances: make(map[DTID]*dtInstance),
	}
}

// RegisterType binds a type tag to its DataStructure implementation.
func (r *DTRegistry) RegisterType(tag interfaces.DTType, impl DataStructure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[tag] = impl
}

// RegisterInstance registers one instance of a previously-registered type
// and returns the DTID subsequent pages should carry in their header.
func (r *DTRegistry) RegisterInstance(tag interfaces.DTType, name string) DTID {
	r.mu.Lock()
	defer r.mu.Unlock()
	impl, ok := r.types[tag]
	if !ok {
		fatalf("RegisterInstance: unknown data-structure type %d", tag)
	}
	id := r.nextID
	r.nextID++
	r.instances[id] = &dtInstance{typeTag: tag, impl: impl, name: name}
	return id
}

// lookup resolves a page's DTID to the DataStructure implementation that
// owns it.
func (r *DTRegistry) lookup(id DTID) DataStructure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		fatalf("DTRegistry: page references unregistered instance %d", id)
	}
	return inst.impl
}

// IterateChildSwips dispatches to the DataStructure owning frame's page.
func (r *DTRegistry) IterateChildSwips(frame *BufferFrame, visit func(*AtomicSwip) bool) error {
	return r.lookup(frame.Page.Header.DTID).IterateChildSwips(frame, visit)
}

// FindParent dispatches to the DataStructure owning frame's page.
func (r *DTRegistry) FindParent(frame *BufferFrame) (*OptimisticGuard, *BufferFrame, *AtomicSwip, error) {
	return r.lookup(frame.Page.Header.DTID).FindParent(frame)
}
