// Package tuple implements the tuple and list-file runtime described in
// spec.md Data Model: ordered value sequences conforming to a type list,
// held in an append-only, scan-restartable list file. Grounded on the
// teacher's executor.Relation/executor.Tuple shape (datalog/executor/
// relation.go, batch_iterator.go), generalized from an in-memory-only
// relation to the list-file semantics (query-id identity, saved scan
// positions, external sort, sorted-merge join) spec.md §3-4.1 require.
package tuple

import (
	"fmt"

	"github.com/relcore/xqe/value"
)

// TypeList is a tuple's schema: the ordered column domains every tuple in
// a list file must conform to (invariant I2).
type TypeList []value.Type

// Tuple is an ordered sequence of Values matching a TypeList.
type Tuple []value.Value

// At returns the value at column, and its encoded length; a length of 0
// means the column is null (tuple_value_at).
func (t Tuple) At(column int) (value.Value, int) {
	v := t[column]
	if v.Null {
		return v, 0
	}
	return v, encodedLength(v)
}

// SetValue replaces a column's value in place. Legal only for fixed-width
// domains (tuple_set_value) -- variable-width domains must instead produce
// a new Tuple, since an in-place rewrite could change the tuple's encoded
// length and corrupt a page's slot directory.
func (t Tuple) SetValue(column int, v value.Value) error {
	if !isFixedWidth(v.Type.Domain) {
		return fmt.Errorf("tuple: SetValue is only legal for fixed-width domains, got %s", v.Type.Domain)
	}
	t[column] = v
	return nil
}

func isFixedWidth(d value.Domain) bool {
	switch d {
	case value.DomainSmallint, value.DomainInteger, value.DomainBigint,
		value.DomainFloat, value.DomainDouble, value.DomainDate,
		value.DomainTime, value.DomainTimestamp, value.DomainOID:
		return true
	default:
		return false
	}
}

func encodedLength(v value.Value) int {
	if v.Null {
		return 0
	}
	switch v.Type.Domain {
	case value.DomainSmallint:
		return 2
	case value.DomainInteger, value.DomainFloat:
		return 4
	case value.DomainBigint, value.DomainDouble, value.DomainDate, value.DomainTime, value.DomainTimestamp:
		return 8
	case value.DomainOID:
		return 10
	case value.DomainChar:
		s, _ := v.Scalar.(string)
		return len(s)
	case value.DomainNumeric:
		s, _ := v.Scalar.(string)
		return len(s)
	default:
		return 0
	}
}

// Conforms reports whether t matches the given type list (invariant I2).
func (t Tuple) Conforms(types TypeList) bool {
	if len(t) != len(types) {
		return false
	}
	for i, v := range t {
		if v.Null {
			continue
		}
		if v.Type.Domain != types[i].Domain {
			return false
		}
	}
	return true
}

func (t Tuple) Clone() Tuple {
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}
