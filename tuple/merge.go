package tuple

import (
	"errors"

	"github.com/relcore/xqe/value"
)

// JoinType names the merge-join variants spec.md §4.1 requires.
type JoinType int

const (
	Inner JoinType = iota
	LeftOuter
	RightOuter
	FullOuter
)

// Merge performs list_merge: a single-pass sorted-merge join of two
// list files, already sorted on their respective merge-key columns. At
// each step it compares join-key prefixes (value.Compare, which never
// reports EQ across a null boundary), advances the lesser side
// (value.SortOrder, under which null sorts below every non-null value),
// and on a genuine equality forms a duplicate-key group on each side and
// cross-products the two groups, emitting null-padded unmatched rows for
// outer joins.
func Merge(left, right *ListFile, leftKeys, rightKeys []int, joinType JoinType) (*ListFile, error) {
	if len(leftKeys) != len(rightKeys) {
		return nil, errKeyArity
	}

	l := left.snapshot()
	r := right.snapshot()

	outTypes := make(TypeList, 0, len(left.types)+len(right.types))
	outTypes = append(outTypes, left.types...)
	outTypes = append(outTypes, right.types...)
	out := New(left.id+"+"+right.id, outTypes)

	emit := func(lt, rt Tuple) error {
		row := make(Tuple, 0, len(outTypes))
		row = append(row, lt...)
		row = append(row, rt...)
		_, err := out.Append(row)
		return err
	}
	nullRowOf := func(types TypeList) Tuple {
		row := make(Tuple, len(types))
		for i, t := range types {
			row[i] = value.Null(t)
		}
		return row
	}

	i, j := 0, 0
	for i < len(l) && j < len(r) {
		if keysEqual(l[i], leftKeys, r[j], rightKeys) {
			gi := i
			for gi < len(l) && keysEqual(l[i], leftKeys, l[gi], leftKeys) {
				gi++
			}
			gj := j
			for gj < len(r) && keysEqual(r[j], rightKeys, r[gj], rightKeys) {
				gj++
			}
			for a := i; a < gi; a++ {
				for b := j; b < gj; b++ {
					if err := emit(l[a], r[b]); err != nil {
						return nil, err
					}
				}
			}
			i, j = gi, gj
			continue
		}

		order := sortOrderKeys(l[i], leftKeys, r[j], rightKeys)
		if order <= 0 {
			if joinType == LeftOuter || joinType == FullOuter {
				if err := emit(l[i], nullRowOf(right.types)); err != nil {
					return nil, err
				}
			}
			i++
		}
		if order >= 0 {
			if joinType == RightOuter || joinType == FullOuter {
				if err := emit(nullRowOf(left.types), r[j]); err != nil {
					return nil, err
				}
			}
			j++
		}
	}

	for ; i < len(l); i++ {
		if joinType == LeftOuter || joinType == FullOuter {
			if err := emit(l[i], nullRowOf(right.types)); err != nil {
				return nil, err
			}
		}
	}
	for ; j < len(r); j++ {
		if joinType == RightOuter || joinType == FullOuter {
			if err := emit(nullRowOf(left.types), r[j]); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

func keysEqual(a Tuple, aKeys []int, b Tuple, bKeys []int) bool {
	for k := range aKeys {
		if value.Compare(a[aKeys[k]], b[bKeys[k]]) != value.EQ {
			return false
		}
	}
	return true
}

func sortOrderKeys(a Tuple, aKeys []int, b Tuple, bKeys []int) int {
	for k := range aKeys {
		if c := value.SortOrder(a[aKeys[k]], b[bKeys[k]]); c != 0 {
			return c
		}
	}
	return 0
}

var errKeyArity = errors.New("tuple: left and right merge keys must have equal arity")
