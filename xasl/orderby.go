package xasl

import (
	"fmt"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// OrderByNode implements ORDER BY / DISTINCT / ORDBYNUM per spec.md
// §4.7.3 as a single sort pass: ordering, ORDBYNUM numbering, and
// duplicate elimination are all folded into one call to tuple.Sort so
// the input is only ever read through once.
type OrderByNode struct {
	Input       *tuple.ListFile
	Keys        []tuple.SortKey
	Distinct    bool
	OrdByNum    func(ordinal int) InstNumSignal
	OutputTypes tuple.TypeList
	QueryID     string

	// SkipSort, when true, tells Run that Input is already known to be
	// ordered consistently with Keys (e.g. it is the output of an index
	// scan that walked the same key in order), so the sort pass is
	// skipped and only ORDBYNUM/DISTINCT are applied in a linear pass.
	SkipSort bool
}

func (n *OrderByNode) StartIterations(ctx *Context) (*State, error) {
	return NewState(n.QueryID, n.OutputTypes), nil
}

func (n *OrderByNode) OneIteration(ctx *Context, st *State) (bool, error) {
	return false, fmt.Errorf("xasl: OrderByNode drives via Run, not one_iteration")
}

func (n *OrderByNode) EndIterations(ctx *Context, st *State) error {
	return st.Output.Close()
}

// Run drives ORDER BY's single pass. When n.SkipSort is requested, it
// first verifies the input is actually ordered consistently with Keys
// (per spec.md §4.7.3's "skip a redundant sort when an existing order
// already covers the required order"); if it is not, Run falls back to
// sorting rather than silently producing wrong order.
func (n *OrderByNode) Run(ctx *Context) (*tuple.ListFile, error) {
	ordinal := 0
	transform := func(t tuple.Tuple, _ int) (tuple.Tuple, tuple.SinkResult, error) {
		if n.OrdByNum != nil {
			switch n.OrdByNum(ordinal) {
			case InstNumStop:
				return nil, tuple.StopOk, nil
			}
		}
		ordinal++
		return t, tuple.Continue, nil
	}

	if n.SkipSort && tuple.IsSortedBy(n.Input, n.Keys) {
		return n.runLinear(transform)
	}
	return tuple.Sort(n.Input, n.Keys, n.Distinct, transform)
}

// runLinear applies DISTINCT and the ORDBYNUM transform in a single
// forward scan, for the case where the input is already known to be
// ordered on n.Keys and a sort pass would be redundant work.
func (n *OrderByNode) runLinear(transform tuple.TransformFunc) (*tuple.ListFile, error) {
	out := tuple.New(tuple.QueryID(n.QueryID), n.OutputTypes)
	scanner := n.Input.NewScan()
	ordinal := 0
	var prev tuple.Tuple
	for scanner.Next() {
		row := scanner.Tuple()
		if n.Distinct && prev != nil && rowsEqualOn(prev, row, n.Keys) {
			continue
		}
		prev = row

		transformed, res, err := transform(row, ordinal)
		if err != nil {
			return nil, err
		}
		if res == tuple.SinkError {
			return nil, fmt.Errorf("xasl: order by transform reported an error")
		}
		if res == tuple.StopOk {
			break
		}
		if _, err := out.Append(transformed); err != nil {
			return nil, err
		}
		ordinal++
	}
	return out, nil
}

func rowsEqualOn(a, b tuple.Tuple, keys []tuple.SortKey) bool {
	if len(keys) == 0 {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !valuesEqualForDistinct(a[i], b[i]) {
				return false
			}
		}
		return true
	}
	for _, k := range keys {
		if !valuesEqualForDistinct(a[k.Column], b[k.Column]) {
			return false
		}
	}
	return true
}

// valuesEqualForDistinct treats two NULLs as equal, matching SQL's
// DISTINCT semantics -- unlike value.Compare, which a join uses and
// which never reports two nulls equal to each other.
func valuesEqualForDistinct(a, b value.Value) bool {
	return value.SortOrder(a, b) == 0
}

// PositionalProjection rewrites each outgoing tuple to the given column
// ordinals, implementing ORDER BY's positional-expression projection
// (e.g. "ORDER BY 2, 1") ahead of the sort pass.
func PositionalProjection(row tuple.Tuple, positions []int, outTypes tuple.TypeList) (tuple.Tuple, error) {
	out := make(tuple.Tuple, len(positions))
	for i, p := range positions {
		if p < 0 || p >= len(row) {
			return nil, fmt.Errorf("xasl: order by position %d out of range for row of width %d", p, len(row))
		}
		out[i] = row[p]
	}
	if !out.Conforms(outTypes) {
		return nil, fmt.Errorf("xasl: positional projection does not conform to expected types")
	}
	return out, nil
}
