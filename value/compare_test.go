package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompareOrderedScalars(t *testing.T) {
	require.Equal(t, LT, Compare(Int(1), Int(2)))
	require.Equal(t, GT, Compare(Bigint(5), Bigint(3)))
	require.Equal(t, EQ, Compare(Double(1.5), Double(1.5)))
	require.Equal(t, LT, Compare(Char("a", ""), Char("b", "")))
}

func TestCompareNeverEqualAcrossNull(t *testing.T) {
	intType := Type{Domain: DomainInteger}
	require.Equal(t, UNKNOWN, Compare(Null(intType), Null(intType)), "compare(null, null) must not be EQ")
	require.Equal(t, UNKNOWN, Compare(Null(intType), Int(1)))
	require.Equal(t, UNKNOWN, Compare(Int(1), Null(intType)))
	require.False(t, Equal(Null(intType), Null(intType)))
}

func TestSortOrderPlacesNullBelowNonNull(t *testing.T) {
	intType := Type{Domain: DomainInteger}
	require.Equal(t, -1, SortOrder(Null(intType), Int(1)))
	require.Equal(t, 1, SortOrder(Int(1), Null(intType)))
	require.Equal(t, 0, SortOrder(Null(intType), Null(intType)))
}

func TestCompareTimeDomains(t *testing.T) {
	t1 := Date(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	t2 := Date(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, LT, Compare(t1, t2))
	require.Equal(t, GT, Compare(t2, t1))
}

func TestCompareOIDDomain(t *testing.T) {
	a := OIDValue(OID{Volume: 1, Page: 2, Slot: 3})
	b := OIDValue(OID{Volume: 1, Page: 2, Slot: 4})
	require.Equal(t, LT, Compare(a, b))
	require.Equal(t, GT, Compare(b, a))
	require.Equal(t, EQ, Compare(a, a))
}

func TestCompareCollectionsElementwise(t *testing.T) {
	elemType := Type{Domain: DomainInteger}
	a := Collection(DomainSet, elemType, []Value{Int(1), Int(2)})
	b := Collection(DomainSet, elemType, []Value{Int(1), Int(3)})
	require.Equal(t, LT, Compare(a, b))
}

func TestCompareCrossDomainError(t *testing.T) {
	require.Equal(t, ERROR, Compare(Char("x", ""), OIDValue(OID{})))
}

func TestCompareCrossNumericWidening(t *testing.T) {
	require.Equal(t, EQ, Compare(Int(5), Bigint(5)))
	require.Equal(t, LT, Compare(Int(5), Double(5.5)))
}
