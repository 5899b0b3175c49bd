package xasl

import (
	"github.com/relcore/xqe/internal/xerrors"
	"github.com/relcore/xqe/scan"
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// InstNumSignal is the three-way outcome of evaluating an INSTNUM
// predicate, per spec.md §4.7.1.
type InstNumSignal int

const (
	InstNumContinue InstNumSignal = iota
	InstNumCheckMode
	InstNumStop
)

// Predicate evaluates a boolean (possibly three-valued) condition over a
// bound row, returning ok=false for UNKNOWN (which disqualifies the row).
type Predicate func(row tuple.Tuple) (result bool, ok bool, err error)

// SubqueryRefresh clears a dptr_list correlated subquery's prior result
// list file and re-runs it for the current outer row.
type SubqueryRefresh func(outer tuple.Tuple) error

// PathFetch evaluates a bptr_list/fptr_list path-expression fetch,
// returning satisfied=false when the object does not satisfy the
// selector (disqualifying the row for bptr_list; fptr_list failures are
// not disqualifying per spec.md §4.7.1 step 4, which only evaluates them).
type PathFetch func(row tuple.Tuple) (satisfied bool, err error)

// AccessSpec is one scan source in the spec list, paired with the
// predicate/fetch chains spec.md §4.7.1 evaluates in order.
type AccessSpec struct {
	Driver          scan.Driver
	KnownEmpty      bool
	BeforeJoinFetch []PathFetch
	Correlated      []SubqueryRefresh
	AfterJoinPred   Predicate
	IfPred          Predicate
	ForwardFetch    []PathFetch

	// ScanPtr is the nested-loop successor driven once per outer tuple;
	// nil if this access spec has no inner join.
	ScanPtr *AccessSpec

	InstNum func(row tuple.Tuple, ordinal int) InstNumSignal

	// ConnectBy, when non-nil, receives every qualifying tuple instead
	// of it being emitted directly.
	ConnectBy func(row tuple.Tuple) error
}

// ScanLoopNode drives the spec-list scan loop of spec.md §4.7.1 across
// one or more access specs, emitting through State.emitRow.
type ScanLoopNode struct {
	Specs        []*AccessSpec
	OutputTypes  tuple.TypeList
	QueryID      string
	CompositeLocking bool
}

func (n *ScanLoopNode) StartIterations(ctx *Context) (*State, error) {
	st := NewState(n.QueryID, n.OutputTypes)
	st.CompositeLocking = n.CompositeLocking
	return st, nil
}

func (n *ScanLoopNode) OneIteration(ctx *Context, st *State) (bool, error) {
	for _, spec := range n.Specs {
		if spec.KnownEmpty {
			continue
		}
		more, err := n.driveSpec(ctx, st, spec)
		if err != nil {
			return false, err
		}
		if more {
			return true, nil
		}
	}
	return false, nil
}

func (n *ScanLoopNode) EndIterations(ctx *Context, st *State) error {
	if st.CompositeLocking {
		if err := ctx.FlushCompositeLocks("scan_loop"); err != nil {
			return err
		}
	}
	return st.Output.Close()
}

// driveSpec advances spec one tuple (or one nested-loop group) at a time
// and emits qualifying rows, returning more=true if it produced a row on
// this call.
func (n *ScanLoopNode) driveSpec(ctx *Context, st *State, spec *AccessSpec) (bool, error) {
	d := spec.Driver
	for {
		if st.scanStopped {
			return false, nil
		}
		hasBlock, err := d.NextBlock()
		if err != nil {
			return false, err
		}
		if !hasBlock {
			return false, nil
		}

		res, err := d.NextTuple()
		if err != nil {
			return false, err
		}
		if res == scan.End {
			continue
		}
		if res == scan.ScanError {
			return false, errScanFailed
		}

		row := d.Tuple()

		disqualified, err := qualifyRow(row, spec)
		if err != nil {
			return false, err
		}
		if disqualified {
			continue
		}

		if spec.ScanPtr != nil {
			if err := spec.ScanPtr.Driver.ResetBlock(); err != nil {
				return false, err
			}
			emittedAny, err := n.driveSpec(ctx, st, spec.ScanPtr)
			if err != nil {
				return false, err
			}
			if !emittedAny {
				continue
			}
			return true, nil
		}

		if spec.ConnectBy != nil {
			if err := spec.ConnectBy(row); err != nil {
				return false, err
			}
			continue
		}

		if spec.InstNum != nil {
			switch spec.InstNum(row, st.InstNum) {
			case InstNumStop:
				st.scanStopped = true
				return false, nil
			case InstNumCheckMode:
				// continue; caller has already verified contiguity
			}
		}
		st.InstNum++

		if st.CompositeLocking && len(row) >= 2 {
			if oid1, ok := row[0].Scalar.(value.OID); ok {
				if oid2, ok := row[1].Scalar.(value.OID); ok {
					ctx.addCompositeLock(oid1, oid2)
				}
			}
		}

		if err := st.emitRow(row); err != nil {
			return false, err
		}
		return true, nil
	}
}

// qualifyRow runs the bptr_list/dptr_list/after_join_pred/if_pred/fptr_list
// chain in the order spec.md §4.7.1 specifies.
func qualifyRow(row tuple.Tuple, spec *AccessSpec) (disqualified bool, err error) {
	for _, fetch := range spec.BeforeJoinFetch {
		ok, err := fetch(row)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}

	for _, refresh := range spec.Correlated {
		if err := refresh(row); err != nil {
			return false, err
		}
	}

	for _, pred := range []Predicate{spec.AfterJoinPred, spec.IfPred} {
		if pred == nil {
			continue
		}
		result, ok, err := pred(row)
		if err != nil {
			return false, err
		}
		if !ok || !result {
			return true, nil
		}
	}

	for _, fetch := range spec.ForwardFetch {
		if _, err := fetch(row); err != nil {
			return false, err
		}
	}

	return false, nil
}

var errScanFailed = xerrors.Internalf("scan_loop", "scan driver reported an error")
