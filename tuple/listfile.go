package tuple

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// QueryID identifies a list file, per spec.md §3 ("a sequential, appendable,
// scan-restartable container ... identified by a query-id").
type QueryID string

// NewQueryID synthesizes a fresh query-id for a list file the plan
// interpreter creates without one pre-assigned by its caller. The on-disk
// plan-id (plancache.PlanID) keeps its own three-int32-plus-stored-time shape; this is
// the separate in-memory identifier spec.md §3 calls a list file's
// query-id.
func NewQueryID() QueryID {
	return QueryID(uuid.NewString())
}

// SetOp names the set-operation flag a list file may carry when it is the
// output of UNION/INTERSECT/DIFFERENCE.
type SetOp int

const (
	SetOpNone SetOp = iota
	SetOpUnion
	SetOpIntersect
	SetOpDifference
)

// Flags mirror the list-file flags named in spec.md §3: distinct required,
// final-result-of-query, and the originating set operation.
type Flags struct {
	Distinct    bool
	FinalResult bool
	Op          SetOp
}

// Position addresses one tuple within a list file by (page, offset), per
// the data model. Real page/slot management belongs to the out-of-scope
// storage layer (spec.md §1); ListFile here synthesizes Position values
// from a fixed logical page size so callers can still save/restore a scan
// position without this package owning a page buffer pool.
type Position struct {
	Page   int64
	Offset int32
}

const tuplesPerPage = 256

func positionForIndex(i int) Position {
	return Position{Page: int64(i / tuplesPerPage), Offset: int32(i % tuplesPerPage)}
}

func indexForPosition(p Position) int {
	return int(p.Page)*tuplesPerPage + int(p.Offset)
}

// ListFile is an append-only, scan-restartable sequence of homogeneously
// typed tuples. Appends are serialized by mu (spec.md §5 "per-list-file
// mutex guards appends"); scans taken via NewScan see a frozen snapshot
// length so that appends made after a scan starts are not guaranteed
// visible to it (invariant I2).
type ListFile struct {
	mu     sync.Mutex
	id     QueryID
	types  TypeList
	tuples []Tuple
	flags  Flags
	closed bool
}

// New creates an empty list file for the given query-id and schema.
func New(id QueryID, types TypeList) *ListFile {
	return &ListFile{id: id, types: types}
}

func (lf *ListFile) ID() QueryID     { return lf.id }
func (lf *ListFile) Types() TypeList { return lf.types }
func (lf *ListFile) Flags() Flags    { return lf.flags }

func (lf *ListFile) SetFlags(f Flags) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.flags = f
}

// Append adds one tuple (tuple_append) and returns its list-file position.
func (lf *ListFile) Append(t Tuple) (Position, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return Position{}, fmt.Errorf("tuple: append to closed list file %s", lf.id)
	}
	if !t.Conforms(lf.types) {
		return Position{}, fmt.Errorf("tuple: tuple does not conform to list file %s's type list", lf.id)
	}
	idx := len(lf.tuples)
	lf.tuples = append(lf.tuples, t.Clone())
	return positionForIndex(idx), nil
}

// Close marks the list file closed; further appends fail, but existing
// scans may continue to completion (they already hold a frozen length).
func (lf *ListFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.closed = true
	return nil
}

// Len returns the current number of appended tuples.
func (lf *ListFile) Len() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.tuples)
}

// snapshot returns the tuples visible to a scan started now: a private
// copy of the slice header (not the tuples themselves) so later appends
// never retroactively extend an in-progress scan.
func (lf *ListFile) snapshot() []Tuple {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.tuples[:len(lf.tuples):len(lf.tuples)]
}

func (lf *ListFile) tupleAt(i int) Tuple {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.tuples[i]
}

// ScanState is the lifecycle of one open cursor over a source, per spec.md
// §3 "Scan identifier".
type ScanState int

const (
	ScanClosed ScanState = iota
	ScanStarted
	ScanSuspended
	ScanEnded
)

// Scan is a re-entrant, positionable cursor over a ListFile snapshot.
type Scan struct {
	lf      *ListFile
	frozen  []Tuple
	idx     int
	state   ScanState
}

// NewScan opens a scan over lf, freezing the currently-appended tuples.
func (lf *ListFile) NewScan() *Scan {
	return &Scan{lf: lf, frozen: lf.snapshot(), idx: -1, state: ScanStarted}
}

func (s *Scan) State() ScanState { return s.state }

// Next advances to the next tuple; returns false at end (ScanEnded).
func (s *Scan) Next() bool {
	if s.state == ScanClosed || s.state == ScanEnded {
		return false
	}
	s.idx++
	if s.idx >= len(s.frozen) {
		s.state = ScanEnded
		return false
	}
	s.state = ScanStarted
	return true
}

// Tuple returns the tuple at the current cursor position.
func (s *Scan) Tuple() Tuple {
	return s.frozen[s.idx]
}

// Position returns the current cursor's list-file position.
func (s *Scan) Position() Position {
	return positionForIndex(s.idx)
}

// Suspend marks the scan re-entrant-suspended without losing position,
// per the CLOSED -> STARTED -> SUSPENDED (re-entrant) -> ENDED lifecycle.
func (s *Scan) Suspend() {
	if s.state != ScanEnded {
		s.state = ScanSuspended
	}
}

// JumpToPosition restores a previously saved position (used to backtrack
// an inner scan across a duplicate-key group in merge-join).
func (s *Scan) JumpToPosition(p Position) error {
	idx := indexForPosition(p)
	if idx < 0 || idx > len(s.frozen) {
		return fmt.Errorf("tuple: scan position out of range")
	}
	s.idx = idx - 1 // Next() will land exactly on idx
	s.state = ScanStarted
	return nil
}

// Close ends the scan.
func (s *Scan) Close() error {
	s.state = ScanEnded
	return nil
}

// Reset restarts the scan from the beginning of its frozen snapshot.
func (s *Scan) Reset() {
	s.idx = -1
	s.state = ScanStarted
}
