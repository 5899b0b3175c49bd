package xasl

import (
	"testing"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
	"github.com/stretchr/testify/require"
)

// hierRow lays out (id, parent, name); parent is null for a root.
func hierRow(id int32, parent *int32, name string) tuple.Tuple {
	p := value.Null(intT)
	if parent != nil {
		p = value.Int(*parent)
	}
	return tuple.Tuple{value.Int(id), p, value.Char(name, "")}
}

func i32(v int32) *int32 { return &v }

func idPredicate(child, parent tuple.Tuple) (bool, bool, error) {
	if child[1].Null {
		return false, true, nil
	}
	return child[1].Scalar.(int32) == parent[0].Scalar.(int32), true, nil
}

func isRootPredicate(row tuple.Tuple) (bool, bool, error) {
	return row[1].Null, true, nil
}

// TestConnectByWithNoCycleFlagsRepeatedNameAndStopsDescent builds a
// 3-generation hierarchy where the grandchild's name repeats the root's
// name: 1(A) -> 2(B) -> 3(A) -> 4(C). NOCYCLE marks node 3 as a cycle
// against its ancestor (node 1) and keeps it in the result, but does not
// descend past it, so node 4 never appears.
func TestConnectByWithNoCycleFlagsRepeatedNameAndStopsDescent(t *testing.T) {
	hierTypes := tuple.TypeList{intT, intT, charT}
	lf := tuple.New("q", hierTypes)
	rows := []tuple.Tuple{
		hierRow(1, nil, "A"),
		hierRow(2, i32(1), "B"),
		hierRow(3, i32(2), "A"),
		hierRow(4, i32(3), "C"),
	}
	for _, r := range rows {
		_, err := lf.Append(r)
		require.NoError(t, err)
	}

	n := &ConnectByNode{
		Source:       lf,
		StartWith:    isRootPredicate,
		Predicate:    idPredicate,
		NoCycle:      true,
		CycleColumns: []int{2}, // only "name" is part of the output projection
		QueryID:      "q-out",
	}

	res, err := n.Run(hierTypes)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows.Len())

	scanner := res.Rows.NewScan()
	var names []string
	i := 0
	var levels []int
	var isCycle []bool
	for scanner.Next() {
		row := scanner.Tuple()
		names = append(names, row[2].Scalar.(string))
		levels = append(levels, res.Level[i])
		isCycle = append(isCycle, res.IsCycle[i])
		i++
	}

	require.Equal(t, []string{"A", "B", "A"}, names)
	require.Equal(t, []int{1, 2, 3}, levels)
	require.Equal(t, []bool{false, false, true}, isCycle)
}

func TestConnectByWithoutNoCycleFailsOnCycle(t *testing.T) {
	hierTypes := tuple.TypeList{intT, intT, charT}
	lf := tuple.New("q", hierTypes)
	rows := []tuple.Tuple{
		hierRow(1, nil, "A"),
		hierRow(2, i32(1), "B"),
		hierRow(3, i32(2), "A"),
	}
	for _, r := range rows {
		_, err := lf.Append(r)
		require.NoError(t, err)
	}

	n := &ConnectByNode{
		Source:       lf,
		StartWith:    isRootPredicate,
		Predicate:    idPredicate,
		NoCycle:      false,
		CycleColumns: []int{2},
		QueryID:      "q-out",
	}

	_, err := n.Run(hierTypes)
	require.Error(t, err)
}

func TestConnectByNoCycleFalseUnaffectedWhenNoRepeat(t *testing.T) {
	hierTypes := tuple.TypeList{intT, intT, charT}
	lf := tuple.New("q", hierTypes)
	rows := []tuple.Tuple{
		hierRow(1, nil, "A"),
		hierRow(2, i32(1), "B"),
		hierRow(3, i32(2), "C"),
	}
	for _, r := range rows {
		_, err := lf.Append(r)
		require.NoError(t, err)
	}

	n := &ConnectByNode{
		Source:       lf,
		StartWith:    isRootPredicate,
		Predicate:    idPredicate,
		NoCycle:      false,
		CycleColumns: []int{2},
		QueryID:      "q-out",
	}

	res, err := n.Run(hierTypes)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows.Len())
	for _, c := range res.IsCycle {
		require.False(t, c)
	}
}

func TestConnectByOrderSiblingsByReordersChildrenBeforeIndexing(t *testing.T) {
	hierTypes := tuple.TypeList{intT, intT, charT}
	lf := tuple.New("q", hierTypes)
	rows := []tuple.Tuple{
		hierRow(1, nil, "root"),
		hierRow(2, i32(1), "charlie"),
		hierRow(3, i32(1), "alpha"),
		hierRow(4, i32(1), "bravo"),
	}
	for _, r := range rows {
		_, err := lf.Append(r)
		require.NoError(t, err)
	}

	n := &ConnectByNode{
		Source:          lf,
		StartWith:       isRootPredicate,
		Predicate:       idPredicate,
		OrderSiblingsBy: []tuple.SortKey{{Column: 2}},
		QueryID:         "q-out",
	}

	res, err := n.Run(hierTypes)
	require.NoError(t, err)
	require.Equal(t, 4, res.Rows.Len())

	scanner := res.Rows.NewScan()
	var names []string
	for scanner.Next() {
		names = append(names, scanner.Tuple()[2].Scalar.(string))
	}
	require.Equal(t, []string{"root", "alpha", "bravo", "charlie"}, names)
}
