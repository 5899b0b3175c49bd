package tuple

import (
	"testing"

	"github.com/relcore/xqe/value"
	"github.com/stretchr/testify/require"
)

var intT = value.Type{Domain: value.DomainInteger}
var charT = value.Type{Domain: value.DomainChar}

func row(a int32, s string) Tuple {
	return Tuple{value.Int(a), value.Char(s, "")}
}

func nullRow(s string) Tuple {
	return Tuple{value.Null(intT), value.Char(s, "")}
}

// S1: inner merge-join.
func TestMergeInnerJoinScenarioS1(t *testing.T) {
	left := New("left", TypeList{intT, charT})
	for _, rw := range []Tuple{row(1, "a"), row(2, "b"), row(2, "c"), row(3, "d")} {
		_, err := left.Append(rw)
		require.NoError(t, err)
	}
	right := New("right", TypeList{intT, charT})
	for _, rw := range []Tuple{row(2, "x"), row(2, "y"), row(4, "z")} {
		_, err := right.Append(rw)
		require.NoError(t, err)
	}

	out, err := Merge(left, right, []int{0}, []int{0}, Inner)
	require.NoError(t, err)

	scan := out.NewScan()
	var got []Tuple
	for scan.Next() {
		got = append(got, scan.Tuple())
	}
	require.Equal(t, []Tuple{
		{value.Int(2), value.Char("b", ""), value.Int(2), value.Char("x", "")},
		{value.Int(2), value.Char("b", ""), value.Int(2), value.Char("y", "")},
		{value.Int(2), value.Char("c", ""), value.Int(2), value.Char("x", "")},
		{value.Int(2), value.Char("c", ""), value.Int(2), value.Char("y", "")},
	}, got)
}

// S2: left outer merge-join with null.
func TestMergeLeftOuterJoinScenarioS2(t *testing.T) {
	left := New("left", TypeList{intT, charT})
	_, _ = left.Append(nullRow("a"))
	_, _ = left.Append(row(1, "b"))

	right := New("right", TypeList{intT, charT})
	_, _ = right.Append(nullRow("x"))
	_, _ = right.Append(row(1, "y"))

	out, err := Merge(left, right, []int{0}, []int{0}, LeftOuter)
	require.NoError(t, err)

	scan := out.NewScan()
	var got []Tuple
	for scan.Next() {
		got = append(got, scan.Tuple())
	}
	require.Len(t, got, 2)
	require.True(t, got[0][0].Null)
	require.Equal(t, "a", got[0][1].Scalar)
	require.True(t, got[0][2].Null)
	require.True(t, got[0][3].Null)

	require.Equal(t, int32(1), got[1][0].Scalar)
	require.Equal(t, "b", got[1][1].Scalar)
	require.Equal(t, int32(1), got[1][2].Scalar)
	require.Equal(t, "y", got[1][3].Scalar)
}

// list-file integrity: append then scan yields every row exactly once, in order.
func TestListFileAppendScanIntegrity(t *testing.T) {
	lf := New("q1", TypeList{intT})
	for i := int32(0); i < 50; i++ {
		_, err := lf.Append(Tuple{value.Int(i)})
		require.NoError(t, err)
	}
	scan := lf.NewScan()
	var n int32
	for scan.Next() {
		require.Equal(t, n, scan.Tuple()[0].Scalar)
		n++
	}
	require.Equal(t, int32(50), n)
}

// Scan is frozen at the point it was opened (I2): appends after Scan()
// starts need not be visible to it.
func TestScanFrozenAtOpen(t *testing.T) {
	lf := New("q2", TypeList{intT})
	_, _ = lf.Append(Tuple{value.Int(1)})
	scan := lf.NewScan()
	_, _ = lf.Append(Tuple{value.Int(2)})

	var count int
	for scan.Next() {
		count++
	}
	require.Equal(t, 1, count)
	require.Equal(t, 2, lf.Len())
}

func TestSortIdempotent(t *testing.T) {
	lf := New("q3", TypeList{intT})
	for _, v := range []int32{3, 1, 2, 1} {
		_, _ = lf.Append(Tuple{value.Int(v)})
	}
	keys := []SortKey{{Column: 0}}
	once, err := Sort(lf, keys, false, nil)
	require.NoError(t, err)
	twice, err := Sort(once, keys, false, nil)
	require.NoError(t, err)

	s1 := once.NewScan()
	s2 := twice.NewScan()
	for s1.Next() {
		require.True(t, s2.Next())
		require.Equal(t, s1.Tuple(), s2.Tuple())
	}
	require.False(t, s2.Next())
}

func TestSortDistinctDeduplicates(t *testing.T) {
	lf := New("q4", TypeList{intT})
	for _, v := range []int32{1, 2, 1, 2, 3} {
		_, _ = lf.Append(Tuple{value.Int(v)})
	}
	out, err := Sort(lf, []SortKey{{Column: 0}}, true, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
}

func TestSortStopSentinelDiscardsRemainder(t *testing.T) {
	lf := New("q5", TypeList{intT})
	for _, v := range []int32{1, 2, 3, 4, 5} {
		_, _ = lf.Append(Tuple{value.Int(v)})
	}
	out, err := Sort(lf, []SortKey{{Column: 0}}, false, func(t Tuple, ordinal int) (Tuple, SinkResult, error) {
		if ordinal == 2 {
			return t, StopOk, nil
		}
		return t, Continue, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}
