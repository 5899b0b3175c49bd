package xasl

import (
	"fmt"
	"strconv"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// Aggregator accumulates one aggregate function's state across a group's
// rows and finalizes it into a single value.
type Aggregator interface {
	Reset()
	Accumulate(row tuple.Tuple)
	Finalize() value.Value
}

// SumAggregator implements SUM(column), used by the ROLLUP scenario.
type SumAggregator struct {
	Column int
	sum    float64
	seen   bool
	outT   value.Type
}

func NewSumAggregator(column int, outT value.Type) *SumAggregator {
	return &SumAggregator{Column: column, outT: outT}
}

func (a *SumAggregator) Reset() { a.sum = 0; a.seen = false }

func (a *SumAggregator) Accumulate(row tuple.Tuple) {
	v := row[a.Column]
	if v.Null {
		return
	}
	a.seen = true
	switch n := v.Scalar.(type) {
	case int16:
		a.sum += float64(n)
	case int32:
		a.sum += float64(n)
	case int64:
		a.sum += float64(n)
	case float32:
		a.sum += float64(n)
	case float64:
		a.sum += n
	case string:
		if v.Type.Domain == value.DomainNumeric {
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				a.sum += f
			}
		}
	}
}

func (a *SumAggregator) Finalize() value.Value {
	if !a.seen {
		return value.Null(a.outT)
	}
	return value.Double(a.sum)
}

// AggregatorFactory builds a fresh set of aggregators for one group
// (or one rollup level).
type AggregatorFactory func() []Aggregator

// GroupByNode implements the external-sort-then-streaming-fold GROUP BY
// of spec.md §4.7.2, including WITH ROLLUP's N parallel aggregate lists.
type GroupByNode struct {
	Input       *tuple.ListFile
	KeyColumns  []int // group-by key columns, in declared order
	Rollup      bool
	NewAggs     AggregatorFactory
	Having      Predicate
	GroupByNum  func(groupOrdinal int) InstNumSignal
	OutputTypes tuple.TypeList
	QueryID     string
}

func (n *GroupByNode) StartIterations(ctx *Context) (*State, error) {
	return NewState(n.QueryID, n.OutputTypes), nil
}

func (n *GroupByNode) OneIteration(ctx *Context, st *State) (bool, error) {
	return false, fmt.Errorf("xasl: GroupByNode drives via Run, not one_iteration")
}

func (n *GroupByNode) EndIterations(ctx *Context, st *State) error {
	return st.Output.Close()
}

// rollupLevel holds one prefix-depth's in-flight aggregate state and the
// key values it was started with.
type rollupLevel struct {
	aggs    []Aggregator
	keys    []value.Value
	started bool
}

// Run drives the entire GROUP BY: sort the input on the key columns,
// stream the sorted output, and fold into (possibly several, for
// ROLLUP) in-flight groups.
func (n *GroupByNode) Run(ctx *Context) (*tuple.ListFile, error) {
	keys := make([]tuple.SortKey, len(n.KeyColumns))
	for i, col := range n.KeyColumns {
		keys[i] = tuple.SortKey{Column: col}
	}
	sorted, err := tuple.Sort(n.Input, keys, false, nil)
	if err != nil {
		return nil, fmt.Errorf("xasl: group by sort: %w", err)
	}

	out := tuple.New(tuple.QueryID(n.QueryID), n.OutputTypes)
	numLevels := 1
	if n.Rollup {
		numLevels = len(n.KeyColumns) + 1 // 0..N-1 key prefixes, plus the grand total
	}
	levels := make([]*rollupLevel, numLevels)
	for i := range levels {
		levels[i] = &rollupLevel{}
	}

	groupOrdinal := 0
	var prevKeys []value.Value

	emitLevel := func(depth int) error {
		lvl := levels[depth]
		if !lvl.started {
			return nil
		}
		row := make(tuple.Tuple, 0, len(n.OutputTypes))
		for i := range n.KeyColumns {
			if i <= depth {
				row = append(row, lvl.keys[i])
			} else {
				row = append(row, value.Null(n.OutputTypes[i]))
			}
		}
		for _, a := range lvl.aggs {
			row = append(row, a.Finalize())
		}
		if n.Having != nil {
			result, ok, err := n.Having(row)
			if err != nil {
				return err
			}
			if !ok || !result {
				lvl.started = false
				return nil
			}
		}
		if n.GroupByNum != nil {
			if n.GroupByNum(groupOrdinal) == InstNumStop {
				lvl.started = false
				return nil
			}
		}
		groupOrdinal++
		if _, err := out.Append(row); err != nil {
			return err
		}
		lvl.started = false
		return nil
	}

	startLevel := func(depth int, keyVals []value.Value) {
		lvl := levels[depth]
		lvl.aggs = n.NewAggs()
		for _, a := range lvl.aggs {
			a.Reset()
		}
		lvl.keys = append([]value.Value(nil), keyVals...)
		lvl.started = true
	}

	scanner := sorted.NewScan()
	for scanner.Next() {
		row := scanner.Tuple()
		curKeys := make([]value.Value, len(n.KeyColumns))
		for i, col := range n.KeyColumns {
			curKeys[i] = row[col]
		}

		// Group membership uses SortOrder, not Compare: GROUP BY treats two
		// NULL keys as the same group (unlike join equality, where a NULL
		// never matches another NULL), and the input is already ordered by
		// SortOrder from the sort pass above.
		changeDepth := len(n.KeyColumns)
		if prevKeys != nil {
			for i := range n.KeyColumns {
				if value.SortOrder(prevKeys[i], curKeys[i]) != 0 {
					changeDepth = i
					break
				}
			}
		} else {
			changeDepth = -1 // first row: nothing to finalize yet
		}

		if changeDepth >= 0 && changeDepth < len(n.KeyColumns) {
			if n.Rollup {
				for depth := len(n.KeyColumns) - 1; depth >= changeDepth; depth-- {
					if err := emitLevel(depth); err != nil {
						return nil, err
					}
				}
			} else {
				if err := emitLevel(len(n.KeyColumns) - 1); err != nil {
					return nil, err
				}
			}
		}

		for depth := changeDepth; depth < len(n.KeyColumns); depth++ {
			if depth < 0 {
				continue
			}
			if !levels[depth].started {
				startLevel(depth, curKeys[:depth+1])
			}
		}
		if !levels[len(n.KeyColumns)-1].started {
			startLevel(len(n.KeyColumns)-1, curKeys)
		}
		for depth := 0; depth < len(n.KeyColumns); depth++ {
			if !n.Rollup && depth != len(n.KeyColumns)-1 {
				continue
			}
			for _, a := range levels[depth].aggs {
				a.Accumulate(row)
			}
		}
		if n.Rollup {
			if !levels[numLevels-1].started {
				startLevel(numLevels-1, nil)
			}
			for _, a := range levels[numLevels-1].aggs {
				a.Accumulate(row)
			}
		}

		prevKeys = curKeys
	}

	if n.Rollup {
		for depth := len(n.KeyColumns) - 1; depth >= 0; depth-- {
			if err := emitLevel(depth); err != nil {
				return nil, err
			}
		}
		if levels[numLevels-1].started {
			grandRow := make(tuple.Tuple, 0, len(n.OutputTypes))
			for i := range n.KeyColumns {
				grandRow = append(grandRow, value.Null(n.OutputTypes[i]))
			}
			for _, a := range levels[numLevels-1].aggs {
				grandRow = append(grandRow, a.Finalize())
			}
			if _, err := out.Append(grandRow); err != nil {
				return nil, err
			}
		}
	} else if prevKeys != nil {
		if err := emitLevel(len(n.KeyColumns) - 1); err != nil {
			return nil, err
		}
	}

	return out, nil
}
