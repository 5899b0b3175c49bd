package scan

import (
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// SetScan drives KindSet: iteration over a collection-domain value (set,
// multiset, or sequence) held inline in a row, rather than a heap or
// list file -- the "nested table" shape spec.md §4.2 calls out as the
// sixth scan source.
type SetScan struct {
	coll value.Value
	elem value.Type
	idx  int
	cur  tuple.Tuple
}

func NewSetScan(coll value.Value) *SetScan {
	elem := value.Type{Domain: value.DomainNull}
	if coll.Type.Element != nil {
		elem = *coll.Type.Element
	}
	return &SetScan{coll: coll, elem: elem}
}

func (s *SetScan) Kind() Kind { return KindSet }

func (s *SetScan) Open() error {
	s.idx = -1
	return nil
}

func (s *SetScan) NextBlock() (bool, error) { return s.idx < len(s.coll.Coll)-1, nil }

func (s *SetScan) NextTuple() (Result, error) {
	s.idx++
	if s.idx >= len(s.coll.Coll) {
		return End, nil
	}
	s.cur = tuple.Tuple{s.coll.Coll[s.idx]}
	return Success, nil
}

func (s *SetScan) Tuple() tuple.Tuple { return s.cur }

func (s *SetScan) ResetBlock() error {
	s.idx = -1
	return nil
}

func (s *SetScan) JumpToPosition(pos tuple.Position) error {
	idx := int(pos.Page)*tuplesPerBlock + int(pos.Offset)
	if idx < -1 || idx > len(s.coll.Coll) {
		return errPositionOutOfRange
	}
	s.idx = idx - 1
	return nil
}

func (s *SetScan) Close() error { return nil }
