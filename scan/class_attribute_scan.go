package scan

import (
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// ClassCatalog is the contract boundary to the out-of-scope schema
// catalog: the set of attribute values held on the class object itself
// (default values, shared attributes), as opposed to per-instance rows.
type ClassCatalog interface {
	ClassAttributes(classOID value.OID) ([]value.Value, error)
}

// ClassAttributeScan drives KindClassAttribute: a single-row scan over a
// class's own attribute values (e.g. "SELECT class_attr FROM t"), which
// spec.md §4.2 calls out as never eligible for grouping.
type ClassAttributeScan struct {
	catalog  ClassCatalog
	classOID value.OID
	row      tuple.Tuple
	done     bool
	opened   bool
}

func NewClassAttributeScan(catalog ClassCatalog, classOID value.OID) *ClassAttributeScan {
	return &ClassAttributeScan{catalog: catalog, classOID: classOID}
}

func (s *ClassAttributeScan) Kind() Kind { return KindClassAttribute }

func (s *ClassAttributeScan) Open() error {
	row, err := s.catalog.ClassAttributes(s.classOID)
	if err != nil {
		return err
	}
	s.row = tuple.Tuple(row)
	s.done = false
	s.opened = true
	return nil
}

func (s *ClassAttributeScan) NextBlock() (bool, error) { return s.opened && !s.done, nil }

func (s *ClassAttributeScan) NextTuple() (Result, error) {
	if s.done {
		return End, nil
	}
	s.done = true
	return Success, nil
}

func (s *ClassAttributeScan) Tuple() tuple.Tuple { return s.row }

func (s *ClassAttributeScan) ResetBlock() error {
	s.done = false
	return nil
}

func (s *ClassAttributeScan) JumpToPosition(pos tuple.Position) error {
	s.done = pos.Page != 0 || pos.Offset != 0
	return nil
}

func (s *ClassAttributeScan) Close() error {
	s.row = nil
	return nil
}
