package xasl

import (
	"github.com/relcore/xqe/internal/xlog"
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// IncrExpr is one INCR(col)/DECR(col) output expression targeting a
// single attribute of the row being selected, per spec.md §4.7.7.
type IncrExpr struct {
	Column int
	Delta  int64 // negative for DECR
}

// SelUpdLocker is the nested-top-action lock boundary SELUPD drives: a
// non-blocking exclusive acquire per target OID, with commit-or-attach
// decided by whether the lock was already held (instant-granted) or had
// to be newly acquired.
type SelUpdLocker interface {
	// TryAcquireExclusive attempts a non-blocking exclusive lock on oid.
	// instantGranted is true when the caller already held a compatible
	// lock (no new grant was needed); granted is false on lock timeout.
	TryAcquireExclusive(oid value.OID) (granted bool, instantGranted bool, err error)
	CommitNestedAction(oid value.OID) error
	AttachNestedAction(oid value.OID) error
}

// SelUpdNode applies INCR/DECR output expressions to each selected row
// via a locator, per spec.md §4.7.7. Source supplies rows shaped
// [instance-oid, current-attribute-values...].
type SelUpdNode struct {
	Source  *tuple.ListFile
	Locator SelUpdLocker
	Apply   func(oid value.OID, row tuple.Tuple, exprs []IncrExpr) error
	Exprs   []IncrExpr
}

// Run evaluates every qualifying row's INCR/DECR expressions. A lock
// timeout on one row is not an error: spec.md §4.7.7 says the increment
// is silently skipped (logged at debug) rather than surfaced, unlike
// every other concurrency failure in this engine (see internal/xerrors's
// Concurrency kind, which this path deliberately does not raise).
func (n *SelUpdNode) Run() (applied int, err error) {
	scanner := n.Source.NewScan()
	for scanner.Next() {
		row := scanner.Tuple()
		if len(row) < 1 {
			continue
		}
		oid, ok := row[0].Scalar.(value.OID)
		if !ok {
			continue
		}

		granted, instantGranted, lerr := n.Locator.TryAcquireExclusive(oid)
		if lerr != nil {
			return applied, lerr
		}
		if !granted {
			xlog.Component("selupd").Debug().Interface("oid", oid).Msg("lock timeout, skipping increment")
			continue
		}

		if err := n.Apply(oid, row, n.Exprs); err != nil {
			return applied, err
		}
		applied++

		if instantGranted {
			if err := n.Locator.AttachNestedAction(oid); err != nil {
				return applied, err
			}
		} else {
			if err := n.Locator.CommitNestedAction(oid); err != nil {
				return applied, err
			}
		}
	}
	return applied, nil
}
