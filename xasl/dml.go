package xasl

import (
	"github.com/relcore/xqe/internal/xerrors"
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// Locator is the storage boundary DML nodes drive, matching spec.md
// §4.7.5's "apply the update via the locator" language. A concrete
// adapter is responsible for acquiring whatever page/object locks each
// operation needs; DML nodes only sequence the calls and the
// savepoint-based rollback around them.
type Locator interface {
	UpdateRow(instanceOID, classOID value.OID, newValues tuple.Tuple) error
	DeleteRow(instanceOID, classOID value.OID) error
	InsertRow(classOID value.OID, row tuple.Tuple) (value.OID, error)
}

// PartitionKeyFunc re-evaluates a partitioned class's partition key for a
// row's new values, reporting whether the row now belongs to a different
// partition and, if so, which one.
type PartitionKeyFunc func(newValues tuple.Tuple) (targetClassOID value.OID, moved bool, err error)

// UniqueIndexTracker reflects per-index unique-key deltas into the global
// aggregate, either immediately (small statements) or once at the end of
// a batch (multi-row statements over the threshold), per spec.md §4.7.5
// and invariant P10 (global-nulls + global-keys == global-oids).
type UniqueIndexTracker interface {
	ReflectOne(classOID value.OID) error
	ReflectBatch(deltas map[value.OID]int64) error
}

// deleteBatchThreshold is the row count above which DeleteNode defers
// per-index unique-stat reflection to a single batched call at the end,
// per spec.md §4.7.5 ("multi-row delete over a threshold (~20 rows)").
const deleteBatchThreshold = 20

// UpdateNode implements UPDATE per spec.md §4.7.5. Source supplies rows
// shaped [instance-oid, class-oid, new-value-columns...], typically the
// output of an aptr_list sub-plan.
type UpdateNode struct {
	Source    *tuple.ListFile
	Locator   Locator
	Partition PartitionKeyFunc // nil when the class is not partitioned
	Savepoint string
}

// Run applies every row in Source, wrapped in a savepoint per spec.md
// §4.7.5's "each DML opens a savepoint at entry" rule. RowsUpdated counts
// every row the locator accepted, whether or not any column value
// actually changed -- the spec leaves this open (§9 Open Questions); this
// engine counts unconditionally, matching the source's own behavior.
func (n *UpdateNode) Run(ctx *Context) (rowsUpdated int, err error) {
	ctx.OpenSavepoint(n.Savepoint)

	scanner := n.Source.NewScan()
	for scanner.Next() {
		row := scanner.Tuple()
		instanceOID, classOID, newValues, err := splitUpdateRow(row)
		if err != nil {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsUpdated, err
		}

		if n.Partition != nil {
			targetClassOID, moved, perr := n.Partition(newValues)
			if perr != nil {
				ctx.RollbackToSavepoint(n.Savepoint)
				return rowsUpdated, perr
			}
			if moved {
				if err := n.Locator.DeleteRow(instanceOID, classOID); err != nil {
					ctx.RollbackToSavepoint(n.Savepoint)
					return rowsUpdated, err
				}
				if _, err := n.Locator.InsertRow(targetClassOID, newValues); err != nil {
					ctx.RollbackToSavepoint(n.Savepoint)
					return rowsUpdated, err
				}
				rowsUpdated++
				continue
			}
		}

		if err := n.Locator.UpdateRow(instanceOID, classOID, newValues); err != nil {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsUpdated, err
		}
		rowsUpdated++
	}

	ctx.ReleaseSavepoint()
	return rowsUpdated, nil
}

func splitUpdateRow(row tuple.Tuple) (instanceOID, classOID value.OID, newValues tuple.Tuple, err error) {
	if len(row) < 2 {
		return value.OID{}, value.OID{}, nil, xerrors.Internalf("update_row", "row too narrow to carry instance-oid/class-oid")
	}
	instanceOID, ok := row[0].Scalar.(value.OID)
	if !ok {
		return value.OID{}, value.OID{}, nil, xerrors.Internalf("update_row", "column 0 is not an OID")
	}
	classOID, ok = row[1].Scalar.(value.OID)
	if !ok {
		return value.OID{}, value.OID{}, nil, xerrors.Internalf("update_row", "column 1 is not an OID")
	}
	return instanceOID, classOID, row[2:], nil
}

// DeleteNode implements DELETE per spec.md §4.7.5. Source supplies rows
// shaped [instance-oid, class-oid].
type DeleteNode struct {
	Source      *tuple.ListFile
	Locator     Locator
	UniqueStats UniqueIndexTracker // nil if the class carries no unique index
	Savepoint   string
}

func (n *DeleteNode) Run(ctx *Context) (rowsDeleted int, err error) {
	ctx.OpenSavepoint(n.Savepoint)

	batched := n.Source.Len() > deleteBatchThreshold
	deltas := make(map[value.OID]int64)

	scanner := n.Source.NewScan()
	for scanner.Next() {
		row := scanner.Tuple()
		if len(row) < 2 {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsDeleted, xerrors.Internalf("delete_row", "row too narrow to carry instance-oid/class-oid")
		}
		instanceOID, ok := row[0].Scalar.(value.OID)
		if !ok {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsDeleted, xerrors.Internalf("delete_row", "column 0 is not an OID")
		}
		classOID, ok := row[1].Scalar.(value.OID)
		if !ok {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsDeleted, xerrors.Internalf("delete_row", "column 1 is not an OID")
		}

		if err := n.Locator.DeleteRow(instanceOID, classOID); err != nil {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsDeleted, err
		}
		rowsDeleted++

		if n.UniqueStats != nil {
			if batched {
				deltas[classOID]++
			} else if err := n.UniqueStats.ReflectOne(classOID); err != nil {
				ctx.RollbackToSavepoint(n.Savepoint)
				return rowsDeleted, err
			}
		}
	}

	if n.UniqueStats != nil && batched && len(deltas) > 0 {
		if err := n.UniqueStats.ReflectBatch(deltas); err != nil {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsDeleted, err
		}
	}

	ctx.ReleaseSavepoint()
	return rowsDeleted, nil
}

// InsertNode implements INSERT per spec.md §4.7.5, covering plain
// INSERT, REPLACE (probe-then-delete-then-insert), and ON DUPLICATE KEY
// UPDATE (probe-then-bind-then-run-a-dependent-UPDATE).
type InsertNode struct {
	Source   *tuple.ListFile
	ClassOID value.OID
	Locator  Locator

	// ProbeUnique reports the existing row's oid when row's unique-index
	// keys already exist in ClassOID. nil disables duplicate handling
	// entirely (a plain INSERT that relies on the locator to surface a
	// duplicate-key error).
	ProbeUnique func(row tuple.Tuple) (existing value.OID, found bool, err error)

	// Replace requests REPLACE semantics: delete the conflicting row (the
	// locator is expected to take its own exclusive lock, "after the
	// index probe's upgraded lock" per spec.md §4.7.5) before inserting.
	Replace bool

	// OnDuplicateUpdate, when set, is run instead of inserting whenever
	// ProbeUnique finds a duplicate; BindDuplicateOID is called first to
	// bind the duplicate's oid into the dependent UPDATE sub-plan's
	// reserved parameter slot.
	OnDuplicateUpdate *UpdateNode
	BindDuplicateOID  func(oid value.OID)

	Savepoint string
}

func (n *InsertNode) Run(ctx *Context) (rowsInserted int, err error) {
	ctx.OpenSavepoint(n.Savepoint)

	scanner := n.Source.NewScan()
	for scanner.Next() {
		row := scanner.Tuple()

		if n.ProbeUnique != nil {
			existing, found, perr := n.ProbeUnique(row)
			if perr != nil {
				ctx.RollbackToSavepoint(n.Savepoint)
				return rowsInserted, perr
			}
			if found {
				switch {
				case n.Replace:
					if err := n.Locator.DeleteRow(existing, n.ClassOID); err != nil {
						ctx.RollbackToSavepoint(n.Savepoint)
						return rowsInserted, err
					}
				case n.OnDuplicateUpdate != nil:
					n.BindDuplicateOID(existing)
					if _, err := n.OnDuplicateUpdate.Run(ctx); err != nil {
						ctx.RollbackToSavepoint(n.Savepoint)
						return rowsInserted, err
					}
					continue
				default:
					ctx.RollbackToSavepoint(n.Savepoint)
					return rowsInserted, xerrors.Logicalf("insert", "duplicate key value violates unique constraint")
				}
			}
		}

		if _, err := n.Locator.InsertRow(n.ClassOID, row); err != nil {
			ctx.RollbackToSavepoint(n.Savepoint)
			return rowsInserted, err
		}
		rowsInserted++
	}

	ctx.ReleaseSavepoint()
	return rowsInserted, nil
}
