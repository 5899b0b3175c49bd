package xasl

import (
	"testing"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
	"github.com/stretchr/testify/require"
)

func orderRow(n int32) tuple.Tuple {
	return tuple.Tuple{value.Int(n)}
}

func TestOrderBySortsAscending(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	for _, v := range []int32{3, 1, 2} {
		_, err := lf.Append(orderRow(v))
		require.NoError(t, err)
	}

	n := &OrderByNode{
		Input:       lf,
		Keys:        []tuple.SortKey{{Column: 0}},
		OutputTypes: tuple.TypeList{intT},
		QueryID:     "q-out",
	}
	out, err := n.Run(nil)
	require.NoError(t, err)

	scanner := out.NewScan()
	var got []int32
	for scanner.Next() {
		got = append(got, scanner.Tuple()[0].Scalar.(int32))
	}
	require.Equal(t, []int32{1, 2, 3}, got)
}

func TestOrderByDistinctDropsDuplicates(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	for _, v := range []int32{1, 1, 2, 2, 2, 3} {
		_, err := lf.Append(orderRow(v))
		require.NoError(t, err)
	}

	n := &OrderByNode{
		Input:       lf,
		Keys:        []tuple.SortKey{{Column: 0}},
		Distinct:    true,
		OutputTypes: tuple.TypeList{intT},
		QueryID:     "q-out",
	}
	out, err := n.Run(nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
}

func TestOrderByNumStopsAfterN(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	for _, v := range []int32{5, 4, 3, 2, 1} {
		_, err := lf.Append(orderRow(v))
		require.NoError(t, err)
	}

	n := &OrderByNode{
		Input: lf,
		Keys:  []tuple.SortKey{{Column: 0}},
		OrdByNum: func(ordinal int) InstNumSignal {
			if ordinal >= 2 {
				return InstNumStop
			}
			return InstNumContinue
		},
		OutputTypes: tuple.TypeList{intT},
		QueryID:     "q-out",
	}
	out, err := n.Run(nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	scanner := out.NewScan()
	var got []int32
	for scanner.Next() {
		got = append(got, scanner.Tuple()[0].Scalar.(int32))
	}
	require.Equal(t, []int32{1, 2}, got)
}

func TestOrderBySkipSortUsesLinearPassWhenAlreadyOrdered(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	for _, v := range []int32{1, 2, 2, 3} {
		_, err := lf.Append(orderRow(v))
		require.NoError(t, err)
	}

	n := &OrderByNode{
		Input:       lf,
		Keys:        []tuple.SortKey{{Column: 0}},
		Distinct:    true,
		SkipSort:    true,
		OutputTypes: tuple.TypeList{intT},
		QueryID:     "q-out",
	}
	out, err := n.Run(nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
}

func TestOrderBySkipSortFallsBackWhenNotActuallyOrdered(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	for _, v := range []int32{3, 1, 2} {
		_, err := lf.Append(orderRow(v))
		require.NoError(t, err)
	}

	n := &OrderByNode{
		Input:       lf,
		Keys:        []tuple.SortKey{{Column: 0}},
		SkipSort:    true,
		OutputTypes: tuple.TypeList{intT},
		QueryID:     "q-out",
	}
	out, err := n.Run(nil)
	require.NoError(t, err)

	scanner := out.NewScan()
	var got []int32
	for scanner.Next() {
		got = append(got, scanner.Tuple()[0].Scalar.(int32))
	}
	require.Equal(t, []int32{1, 2, 3}, got)
}
