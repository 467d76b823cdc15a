// Package interfaces mirrors the role the teacher project's own
// interfaces package played (github.com/ryogrid/bltree-go-for-embedding/interfaces):
// a minimal, dependency-free description of the buffer manager's external
// collaborator. spec.md §4.9 calls it the "data-structure registry" (DTR):
// an abstract interface the core calls to walk a page's child references
// and locate a page's parent reference, without the core ever importing the
// concrete data-structure (e.g. B-tree) package.
//
// Unlike the teacher's split — which existed to decouple from a genuinely
// separate Go module (github.com/ryogrid/SamehadaDB/lib) — the registration
// metadata here has no reason to live apart from the rest of the buffer
// manager except to keep the "what a data structure must answer" contract
// legible on its own; the interface itself (bufmgr.DataStructure, operating
// directly on *bufmgr.BufferFrame/*bufmgr.AtomicSwip) lives in the core
// package, see dtregistry.go.
package interfaces

// DTType is the data-structure type tag stored on each page header,
// spec.md §4.9: "Two operations, indexed by a data-structure type tag
// stored on each page."
type DTType uint8
