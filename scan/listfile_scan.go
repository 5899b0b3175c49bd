package scan

import (
	"github.com/relcore/xqe/tuple"
)

// ListFileScan drives KindListFile: a scan over an already-materialized
// intermediate result, typically the output of a Sort or Merge step
// feeding the next plan node.
type ListFileScan struct {
	lf   *tuple.ListFile
	opts Options
	inner *tuple.Scan
}

func NewListFileScan(lf *tuple.ListFile, opts Options) *ListFileScan {
	return &ListFileScan{lf: lf, opts: opts}
}

func (s *ListFileScan) Kind() Kind { return KindListFile }

func (s *ListFileScan) Open() error {
	s.inner = s.lf.NewScan()
	return nil
}

// NextBlock is a no-op for list-file scans: the whole scan is one block,
// since the underlying tuples are already resident in memory.
func (s *ListFileScan) NextBlock() (bool, error) {
	return s.inner.State() != tuple.ScanEnded, nil
}

func (s *ListFileScan) NextTuple() (Result, error) {
	if !s.inner.Next() {
		return End, nil
	}
	return Success, nil
}

func (s *ListFileScan) Tuple() tuple.Tuple { return s.inner.Tuple() }

func (s *ListFileScan) ResetBlock() error {
	s.inner.Reset()
	return nil
}

func (s *ListFileScan) JumpToPosition(pos tuple.Position) error {
	return s.inner.JumpToPosition(pos)
}

func (s *ListFileScan) Close() error {
	return s.inner.Close()
}
