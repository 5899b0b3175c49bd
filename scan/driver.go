// Package scan implements the uniform scan-driver contract of spec.md §4.2:
// one interface over six source variants (heap-sequential, heap-indexed,
// class-attribute, list-file, set, method). Grounded on the teacher's
// storage.BadgerMatcher / matcher_iterator_*.go family, which plays the
// same "uniform iterator over a pluggable source" role for pattern
// matching; generalized here from Datalog pattern matching to the
// open/next_block/next_tuple/reset_block/jump_to_position/close contract
// spec.md names explicitly.
package scan

import (
	"github.com/relcore/xqe/tuple"
)

// Result is the outcome of one NextTuple call.
type Result int

const (
	Success Result = iota
	End
	ScanError
)

// Options carries the per-scan flags spec.md §4.2 requires: whether the
// underlying page is pinned across calls ("fixed"), whether qualification
// is batched per block ("grouped"), and whether index scans must preserve
// OID order for a downstream operator.
type Options struct {
	Fixed         bool
	Grouped       bool
	IscanOidOrder bool
}

// Validate enforces the grouping restrictions spec.md §4.2 lists: a
// class-attribute scan and a composite-locking scan must not be grouped;
// an inner scan of an outer join must not be grouped.
func (o Options) Validate(kind Kind, compositeLocking, innerOfOuterJoin bool) error {
	if o.Grouped {
		if kind == KindClassAttribute {
			return errGroupedClassAttribute
		}
		if compositeLocking {
			return errGroupedCompositeLocking
		}
		if innerOfOuterJoin {
			return errGroupedInnerOuterJoin
		}
	}
	return nil
}

// Kind names the six source variants.
type Kind int

const (
	KindHeapSequential Kind = iota
	KindHeapIndexed
	KindClassAttribute
	KindListFile
	KindSet
	KindMethod
)

// Driver is the uniform scan contract every source variant implements.
type Driver interface {
	Kind() Kind
	Open() error
	// NextBlock advances to (or re-reads) the current block of tuples,
	// returning false once no further blocks remain.
	NextBlock() (bool, error)
	// NextTuple advances to the next tuple within the current block,
	// writing the bound row into the driver's own value list.
	NextTuple() (Result, error)
	// Tuple returns the row bound by the most recent successful NextTuple.
	Tuple() tuple.Tuple
	// ResetBlock rewinds to the start of the current block (used by the
	// nested-loop join spine to re-drive an inner scan per outer tuple).
	ResetBlock() error
	// JumpToPosition seeks a previously saved scan position.
	JumpToPosition(pos tuple.Position) error
	Close() error
}
