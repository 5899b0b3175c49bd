package xasl

import (
	"fmt"
	"sort"

	"github.com/relcore/xqe/internal/xerrors"
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// ConnectByPredicate evaluates the CONNECT BY condition for one candidate
// child against its would-be parent row. Go closures replace the
// "prior_val_list" slot-rebinding indirection spec.md §4.7.4 describes:
// callers bind PRIOR(expr) references directly against the parent
// argument rather than through a rewritten regu-variable tree.
type ConnectByPredicate func(child, parent tuple.Tuple) (result bool, ok bool, err error)

// ConnectByNode builds a hierarchy over Source per spec.md §4.7.4: a
// breadth-first expansion keyed by a lexicographically-comparable string
// index, followed by a depth-first re-sort and a parent-position
// rewrite pass.
type ConnectByNode struct {
	Source          *tuple.ListFile
	StartWith       Predicate
	Predicate       ConnectByPredicate
	NoCycle         bool
	OrderSiblingsBy []tuple.SortKey

	// CycleColumns names the row's "output columns" for cycle detection
	// per spec.md §4.7.4 -- the query's own SELECT list, not every column
	// CONNECT BY's predicate happens to reference. A predicate like
	// PRIOR id = parent AND name = PRIOR name reads id and parent, but
	// when only name is projected, only name participates in the
	// ancestor-equality walk; a mismatched surrogate key must not
	// suppress cycle detection. Nil compares the full row.
	CycleColumns []int

	QueryID string
}

// ConnectByResult is ConnectByNode's output: the hierarchy rows in
// depth-first preorder, each paired with its LEVEL/ISLEAF/ISCYCLE
// pseudo-columns and the position of its parent row in Rows
// (HasParent=false for a root).
type ConnectByResult struct {
	Rows       *tuple.ListFile
	Level      []int
	IsLeaf     []bool
	IsCycle    []bool
	ParentPos  []tuple.Position
	HasParent  []bool
}

// cbNode is one node of the in-memory hierarchy being built before the
// depth-first re-sort.
type cbNode struct {
	row         tuple.Tuple
	parent      *cbNode
	level       int
	stringIndex string
	hasChild    bool
	isCycle     bool
}

// stringIndexWidth bounds each sibling segment to 8 zero-padded digits so
// lexicographic string comparison agrees with numeric sibling order for
// up to 99,999,999 siblings at any one level.
const stringIndexWidth = 8

func segmentFor(ordinal int) string {
	return fmt.Sprintf("%0*d", stringIndexWidth, ordinal)
}

// Run drives the full CONNECT BY build. realTypes is Source's schema,
// used to validate rows carried into the output.
func (n *ConnectByNode) Run(realTypes tuple.TypeList) (*ConnectByResult, error) {
	var candidates []tuple.Tuple
	scanner := n.Source.NewScan()
	for scanner.Next() {
		candidates = append(candidates, scanner.Tuple())
	}

	var roots []tuple.Tuple
	for _, row := range candidates {
		if n.StartWith == nil {
			roots = append(roots, row)
			continue
		}
		ok, matched, err := n.StartWith(row)
		if err != nil {
			return nil, err
		}
		if matched && ok {
			roots = append(roots, row)
		}
	}

	roots = n.orderSiblings(roots)
	frontier := make([]*cbNode, len(roots))
	for i, row := range roots {
		frontier[i] = &cbNode{row: row, level: 1, stringIndex: segmentFor(i + 1)}
	}

	var built []*cbNode
	for len(frontier) > 0 {
		var next []*cbNode
		for _, parent := range frontier {
			built = append(built, parent)

			children, err := n.expandChildren(candidates, parent)
			if err != nil {
				return nil, err
			}
			parent.hasChild = len(children) > 0
			for _, child := range children {
				// A cyclic node is kept in the result (marked ISCYCLE) but
				// is not itself expanded, per spec.md §4.7.4's NOCYCLE --
				// descending past it would repeat the row it matched.
				if !child.isCycle {
					next = append(next, child)
				} else {
					built = append(built, child)
				}
			}
		}
		frontier = next
	}

	sort.SliceStable(built, func(i, j int) bool {
		return built[i].stringIndex < built[j].stringIndex
	})

	out := tuple.New(tuple.QueryID(n.QueryID), realTypes)
	res := &ConnectByResult{Rows: out}
	posOf := make(map[*cbNode]tuple.Position, len(built))
	for _, node := range built {
		if !node.row.Conforms(realTypes) {
			return nil, fmt.Errorf("xasl: connect by candidate row does not conform to source schema")
		}
		pos, err := out.Append(node.row)
		if err != nil {
			return nil, err
		}
		posOf[node] = pos
		res.Level = append(res.Level, node.level)
		res.IsLeaf = append(res.IsLeaf, !node.hasChild)
		res.IsCycle = append(res.IsCycle, node.isCycle)
		if node.parent == nil {
			res.HasParent = append(res.HasParent, false)
			res.ParentPos = append(res.ParentPos, tuple.Position{})
		} else {
			res.HasParent = append(res.HasParent, true)
			res.ParentPos = append(res.ParentPos, posOf[node.parent])
		}
	}
	return res, nil
}

// expandChildren finds parent's qualifying children and flags any that
// would repeat a row already on their own ancestor chain. A flagged
// child is still accepted into the hierarchy (ISCYCLE=1) but is not
// itself expanded further -- see the loop in Run that excludes cyclic
// nodes from the next frontier.
func (n *ConnectByNode) expandChildren(candidates []tuple.Tuple, parent *cbNode) ([]*cbNode, error) {
	var matched []tuple.Tuple
	for _, cand := range candidates {
		ok, result, err := n.Predicate(cand, parent.row)
		if err != nil {
			return nil, err
		}
		if ok && result {
			matched = append(matched, cand)
		}
	}

	matched = n.orderSiblings(matched)
	children := make([]*cbNode, len(matched))
	for i, row := range matched {
		child := &cbNode{
			row:         row,
			parent:      parent,
			level:       parent.level + 1,
			stringIndex: parent.stringIndex + "." + segmentFor(i+1),
		}
		if n.cycles(row, parent) {
			if !n.NoCycle {
				return nil, xerrors.Logicalf("connect_by", "cycle detected without NOCYCLE")
			}
			child.isCycle = true
		}
		children[i] = child
	}
	return children, nil
}

// cycles walks from node up through its ancestor chain, comparing
// candidate against each ancestor on n.CycleColumns (the full row when
// unset). A match at any ancestor means extending this path would repeat
// a row already on it.
func (n *ConnectByNode) cycles(candidate tuple.Tuple, node *cbNode) bool {
	for anc := node; anc != nil; anc = anc.parent {
		if n.rowsEqualOnCycleColumns(candidate, anc.row) {
			return true
		}
	}
	return false
}

func (n *ConnectByNode) rowsEqualOnCycleColumns(a, b tuple.Tuple) bool {
	if len(n.CycleColumns) == 0 {
		return rowsEqualExact(a, b, nil)
	}
	return rowsEqualExact(a, b, n.CycleColumns)
}

func rowsEqualExact(a, b tuple.Tuple, columns []int) bool {
	if columns == nil {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if value.Compare(a[i], b[i]) != value.EQ {
				return false
			}
		}
		return true
	}
	for _, col := range columns {
		if value.Compare(a[col], b[col]) != value.EQ {
			return false
		}
	}
	return true
}

// orderSiblings applies ORDER SIBLINGS BY, when specified, to one
// sibling group before string indices are assigned.
func (n *ConnectByNode) orderSiblings(rows []tuple.Tuple) []tuple.Tuple {
	if len(n.OrderSiblingsBy) == 0 || len(rows) < 2 {
		return rows
	}
	out := make([]tuple.Tuple, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range n.OrderSiblingsBy {
			c := value.SortOrder(out[i][k.Column], out[j][k.Column])
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out
}

