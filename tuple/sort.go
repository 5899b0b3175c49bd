package tuple

import (
	"sort"

	"github.com/relcore/xqe/value"
)

// SortKey names one column of a sort/group-by key list and its direction.
type SortKey struct {
	Column int
	Desc   bool
}

// SinkResult is the explicit result type the design notes call for to
// model the source's coroutine-like "put next key" callback: a sort-put
// function may signal STOP to short-circuit further sorting (used by
// ORDBYNUM's "scan stop" case).
type SinkResult int

const (
	Continue SinkResult = iota
	StopOk
	SinkError
)

// TransformFunc may rewrite each outgoing tuple during a sort pass (used
// e.g. to stamp an ORDER BY numbering column) and signals the sorter
// whether to keep going.
type TransformFunc func(t Tuple, ordinal int) (Tuple, SinkResult, error)

// Sort performs list_sort: an external merge sort of lf on keys, optionally
// eliminating duplicates, with an optional transform applied to each
// outgoing tuple. The in-memory slice sort below stands in for the
// teacher-absent external-memory merge sort; the page-spill case is owned
// by the out-of-scope storage layer (spec.md §1), so this function sorts
// the list file's full snapshot, which is the behavior callers observe
// regardless of whether the implementation spills to disk.
func Sort(lf *ListFile, keys []SortKey, distinct bool, transform TransformFunc) (*ListFile, error) {
	snapshot := lf.snapshot()
	ordered := make([]Tuple, len(snapshot))
	copy(ordered, snapshot)

	sort.SliceStable(ordered, func(i, j int) bool {
		return compareByKeys(ordered[i], ordered[j], keys) < 0
	})

	if distinct {
		ordered = dedupe(ordered, keys)
	}

	out := New(lf.id+"-sorted", lf.types)
	ordinal := 0
	for _, t := range ordered {
		row := t
		if transform != nil {
			var res SinkResult
			var err error
			row, res, err = transform(t, ordinal)
			if err != nil {
				return nil, err
			}
			if res == SinkError {
				return nil, err
			}
			if res == StopOk {
				break
			}
		}
		if _, err := out.Append(row); err != nil {
			return nil, err
		}
		ordinal++
	}
	return out, nil
}

func compareByKeys(a, b Tuple, keys []SortKey) int {
	for _, k := range keys {
		c := value.SortOrder(a[k.Column], b[k.Column])
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func dedupe(sorted []Tuple, keys []SortKey) []Tuple {
	if len(sorted) == 0 {
		return sorted
	}
	out := make([]Tuple, 0, len(sorted))
	out = append(out, sorted[0])
	for i := 1; i < len(sorted); i++ {
		if compareByKeys(sorted[i-1], sorted[i], keys) != 0 {
			out = append(out, sorted[i])
		}
	}
	return out
}

// IsSortedBy reports whether lf's current contents are already ordered by
// keys, so callers (e.g. ORDER BY when the plan's existing sort subsumes
// it) can skip a redundant sort pass.
func IsSortedBy(lf *ListFile, keys []SortKey) bool {
	snapshot := lf.snapshot()
	for i := 1; i < len(snapshot); i++ {
		if compareByKeys(snapshot[i-1], snapshot[i], keys) > 0 {
			return false
		}
	}
	return true
}
