package scan

import (
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// Record is one stored row as the out-of-scope heap/B-tree layer hands it
// back: an OID plus its column values.
type Record struct {
	OID value.OID
	Row []value.Value
}

// Heap is the contract boundary to the out-of-scope storage layer
// (spec.md §1: "heap files ... treated as opaque services"). A concrete
// adapter (heap_badger.go) backs it with BadgerDB per SPEC_FULL.md's domain
// stack; it is the only Heap implementation in this package.
type Heap interface {
	// Scan returns all records in heap (page) order.
	Scan() ([]Record, error)
}

// Index is the contract boundary to the out-of-scope B-tree layer. Range
// is a half-open [Low, High) key range; either bound may be the zero Value
// to mean unbounded.
type Index interface {
	Range(low, high value.Value) ([]Record, error)
}

const defaultBlockSize = 64

// HeapSequentialScan drives a full scan of a Heap, per spec.md §4.2's
// "heap-sequential" variant.
type HeapSequentialScan struct {
	heap      Heap
	opts      Options
	records   []Record
	blockSize int
	blockIdx  int
	tupleIdx  int
	cur       tuple.Tuple
}

// NewHeapSequentialScan creates a heap-sequential scan driver over heap,
// blocking tuples blockSize at a time to amortize open/close overhead
// (spec.md's "scan block" concept). blockSize <= 0 uses a default.
func NewHeapSequentialScan(heap Heap, opts Options, blockSize int) *HeapSequentialScan {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &HeapSequentialScan{heap: heap, opts: opts, blockSize: blockSize}
}

func (s *HeapSequentialScan) Kind() Kind { return KindHeapSequential }

func (s *HeapSequentialScan) Open() error {
	records, err := s.heap.Scan()
	if err != nil {
		return err
	}
	s.records = records
	s.blockIdx = 0
	s.tupleIdx = -1
	return nil
}

func (s *HeapSequentialScan) NextBlock() (bool, error) {
	if s.blockIdx*s.blockSize >= len(s.records) {
		return false, nil
	}
	s.tupleIdx = s.blockIdx*s.blockSize - 1
	s.blockIdx++
	return true, nil
}

func (s *HeapSequentialScan) blockEnd() int {
	end := s.blockIdx * s.blockSize
	if end > len(s.records) {
		end = len(s.records)
	}
	return end
}

func (s *HeapSequentialScan) NextTuple() (Result, error) {
	s.tupleIdx++
	if s.tupleIdx >= s.blockEnd() {
		return End, nil
	}
	rec := s.records[s.tupleIdx]
	row := make(tuple.Tuple, 0, len(rec.Row)+2)
	row = append(row, value.OIDValue(rec.OID))
	row = append(row, rec.Row...)
	s.cur = row
	return Success, nil
}

func (s *HeapSequentialScan) Tuple() tuple.Tuple { return s.cur }

func (s *HeapSequentialScan) ResetBlock() error {
	s.tupleIdx = (s.blockIdx-1)*s.blockSize - 1
	return nil
}

func (s *HeapSequentialScan) JumpToPosition(pos tuple.Position) error {
	idx := int(pos.Page)*tuplesPerBlock + int(pos.Offset)
	if idx < 0 || idx > len(s.records) {
		return errPositionOutOfRange
	}
	s.blockIdx = idx/s.blockSize + 1
	s.tupleIdx = idx - 1
	return nil
}

func (s *HeapSequentialScan) Close() error {
	s.records = nil
	return nil
}

// tuplesPerBlock mirrors tuple.Position's page granularity so a scan
// position round-trips through JumpToPosition consistently with the list
// file's own Position encoding.
const tuplesPerBlock = 256

// HeapIndexedScan drives an index-range scan, optionally emitting rows in
// OID order per spec.md §4.2 ("the caller sets iscan_oid_order when
// downstream operators require it").
type HeapIndexedScan struct {
	index    Index
	low, high value.Value
	opts     Options
	records  []Record
	idx      int
	cur      tuple.Tuple
}

func NewHeapIndexedScan(index Index, low, high value.Value, opts Options) *HeapIndexedScan {
	return &HeapIndexedScan{index: index, low: low, high: high, opts: opts}
}

func (s *HeapIndexedScan) Kind() Kind { return KindHeapIndexed }

func (s *HeapIndexedScan) Open() error {
	records, err := s.index.Range(s.low, s.high)
	if err != nil {
		return err
	}
	if s.opts.IscanOidOrder {
		sortRecordsByOID(records)
	}
	s.records = records
	s.idx = -1
	return nil
}

func (s *HeapIndexedScan) NextBlock() (bool, error) { return s.idx < len(s.records)-1, nil }

func (s *HeapIndexedScan) NextTuple() (Result, error) {
	s.idx++
	if s.idx >= len(s.records) {
		return End, nil
	}
	rec := s.records[s.idx]
	row := make(tuple.Tuple, 0, len(rec.Row)+1)
	row = append(row, value.OIDValue(rec.OID))
	row = append(row, rec.Row...)
	s.cur = row
	return Success, nil
}

func (s *HeapIndexedScan) Tuple() tuple.Tuple { return s.cur }

func (s *HeapIndexedScan) ResetBlock() error {
	s.idx = -1
	return nil
}

func (s *HeapIndexedScan) JumpToPosition(pos tuple.Position) error {
	idx := int(pos.Page)*tuplesPerBlock + int(pos.Offset)
	if idx < -1 || idx > len(s.records) {
		return errPositionOutOfRange
	}
	s.idx = idx - 1
	return nil
}

func (s *HeapIndexedScan) Close() error {
	s.records = nil
	return nil
}

func sortRecordsByOID(records []Record) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0; j-- {
			if compareOID(records[j-1].OID, records[j].OID) <= 0 {
				break
			}
			records[j-1], records[j] = records[j], records[j-1]
		}
	}
}

func compareOID(a, b value.OID) int {
	switch {
	case a.Volume != b.Volume:
		return int(a.Volume) - int(b.Volume)
	case a.Page != b.Page:
		return int(a.Page) - int(b.Page)
	default:
		return int(a.Slot) - int(b.Slot)
	}
}
