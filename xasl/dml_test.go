package xasl

import (
	"errors"
	"testing"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
	"github.com/stretchr/testify/require"
)

var oidT = value.Type{Domain: value.DomainOID}

func oid(vol int32) value.OID {
	return value.OID{Volume: vol, Page: 1, Slot: 1}
}

// fakeLocator records every call it receives so tests can assert on
// sequencing without a real storage layer.
type fakeLocator struct {
	updated    []value.OID
	deleted    []value.OID
	inserted   []tuple.Tuple
	failUpdate bool
	failDelete bool
	failInsert bool
	nextOID    int32
}

func (f *fakeLocator) UpdateRow(instanceOID, classOID value.OID, newValues tuple.Tuple) error {
	if f.failUpdate {
		return errors.New("update failed")
	}
	f.updated = append(f.updated, instanceOID)
	return nil
}

func (f *fakeLocator) DeleteRow(instanceOID, classOID value.OID) error {
	if f.failDelete {
		return errors.New("delete failed")
	}
	f.deleted = append(f.deleted, instanceOID)
	return nil
}

func (f *fakeLocator) InsertRow(classOID value.OID, row tuple.Tuple) (value.OID, error) {
	if f.failInsert {
		return value.OID{}, errors.New("insert failed")
	}
	f.nextOID++
	f.inserted = append(f.inserted, row)
	return oid(f.nextOID), nil
}

func updateRow(instance, class value.OID, newVal int32) tuple.Tuple {
	return tuple.Tuple{value.OIDValue(instance), value.OIDValue(class), value.Int(newVal)}
}

func TestUpdateNodeAppliesEveryRow(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, oidT, intT})
	classOID := oid(1)
	_, err := lf.Append(updateRow(oid(10), classOID, 100))
	require.NoError(t, err)
	_, err = lf.Append(updateRow(oid(11), classOID, 200))
	require.NoError(t, err)

	loc := &fakeLocator{}
	n := &UpdateNode{Source: lf, Locator: loc, Savepoint: "sp1"}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, rows)
	require.Len(t, loc.updated, 2)
}

func TestUpdateNodeRollsBackSavepointOnFailure(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, oidT, intT})
	classOID := oid(1)
	_, err := lf.Append(updateRow(oid(10), classOID, 100))
	require.NoError(t, err)

	loc := &fakeLocator{failUpdate: true}
	n := &UpdateNode{Source: lf, Locator: loc, Savepoint: "sp1"}
	ctx := NewContext(0, Options{}, nil)
	ctx.OpenSavepoint("outer")

	_, err = n.Run(ctx)
	require.Error(t, err)
	require.Equal(t, []string{"outer"}, ctx.savepoints)
}

func TestUpdateNodeMovesRowAcrossPartitions(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, oidT, intT})
	classOID := oid(1)
	_, err := lf.Append(updateRow(oid(10), classOID, 999))
	require.NoError(t, err)

	target := oid(2)
	loc := &fakeLocator{}
	n := &UpdateNode{
		Source:  lf,
		Locator: loc,
		Partition: func(newValues tuple.Tuple) (value.OID, bool, error) {
			return target, true, nil
		},
		Savepoint: "sp1",
	}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	require.Len(t, loc.deleted, 1)
	require.Len(t, loc.inserted, 1)
	require.Empty(t, loc.updated)
}

func deleteRow(instance, class value.OID) tuple.Tuple {
	return tuple.Tuple{value.OIDValue(instance), value.OIDValue(class)}
}

func TestDeleteNodeReflectsOneBelowThreshold(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, oidT})
	classOID := oid(1)
	for i := int32(0); i < 5; i++ {
		_, err := lf.Append(deleteRow(oid(10+i), classOID))
		require.NoError(t, err)
	}

	loc := &fakeLocator{}
	reflectOneCalls := 0
	tracker := &fakeUniqueTracker{
		reflectOne: func(value.OID) error { reflectOneCalls++; return nil },
	}
	n := &DeleteNode{Source: lf, Locator: loc, UniqueStats: tracker, Savepoint: "sp1"}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, rows)
	require.Equal(t, 5, reflectOneCalls)
	require.False(t, tracker.batchCalled)
}

func TestDeleteNodeBatchesAboveThreshold(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, oidT})
	classOID := oid(1)
	for i := int32(0); i < 25; i++ {
		_, err := lf.Append(deleteRow(oid(10+i), classOID))
		require.NoError(t, err)
	}

	loc := &fakeLocator{}
	reflectOneCalls := 0
	tracker := &fakeUniqueTracker{
		reflectOne: func(value.OID) error { reflectOneCalls++; return nil },
	}
	n := &DeleteNode{Source: lf, Locator: loc, UniqueStats: tracker, Savepoint: "sp1"}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, rows)
	require.Equal(t, 0, reflectOneCalls)
	require.True(t, tracker.batchCalled)
	require.Equal(t, int64(25), tracker.lastBatch[classOID])
}

type fakeUniqueTracker struct {
	reflectOne  func(value.OID) error
	batchCalled bool
	lastBatch   map[value.OID]int64
}

func (f *fakeUniqueTracker) ReflectOne(classOID value.OID) error {
	return f.reflectOne(classOID)
}

func (f *fakeUniqueTracker) ReflectBatch(deltas map[value.OID]int64) error {
	f.batchCalled = true
	f.lastBatch = deltas
	return nil
}

func TestInsertNodePlainInsert(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	_, err := lf.Append(tuple.Tuple{value.Int(1)})
	require.NoError(t, err)

	loc := &fakeLocator{}
	n := &InsertNode{Source: lf, ClassOID: oid(1), Locator: loc, Savepoint: "sp1"}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	require.Len(t, loc.inserted, 1)
}

func TestInsertNodeWithoutProbeSurfacesDuplicateFromLocator(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	_, err := lf.Append(tuple.Tuple{value.Int(1)})
	require.NoError(t, err)

	loc := &fakeLocator{failInsert: true}
	n := &InsertNode{Source: lf, ClassOID: oid(1), Locator: loc, Savepoint: "sp1"}
	ctx := NewContext(0, Options{}, nil)

	_, err = n.Run(ctx)
	require.Error(t, err)
}

func TestInsertNodeReplaceDeletesThenInserts(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	_, err := lf.Append(tuple.Tuple{value.Int(1)})
	require.NoError(t, err)

	existing := oid(5)
	loc := &fakeLocator{}
	n := &InsertNode{
		Source:   lf,
		ClassOID: oid(1),
		Locator:  loc,
		ProbeUnique: func(row tuple.Tuple) (value.OID, bool, error) {
			return existing, true, nil
		},
		Replace:   true,
		Savepoint: "sp1",
	}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	require.Equal(t, []value.OID{existing}, loc.deleted)
	require.Len(t, loc.inserted, 1)
}

func TestInsertNodeOnDuplicateKeyUpdateRunsDependentUpdate(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	_, err := lf.Append(tuple.Tuple{value.Int(1)})
	require.NoError(t, err)

	existing := oid(5)
	classOID := oid(1)
	updateSource := tuple.New("q", tuple.TypeList{oidT, oidT, intT})
	dependentLoc := &fakeLocator{}
	dependentUpdate := &UpdateNode{Source: updateSource, Locator: dependentLoc, Savepoint: "sp1"}

	loc := &fakeLocator{}
	var boundOID value.OID
	n := &InsertNode{
		Source:   lf,
		ClassOID: classOID,
		Locator:  loc,
		ProbeUnique: func(row tuple.Tuple) (value.OID, bool, error) {
			return existing, true, nil
		},
		OnDuplicateUpdate: dependentUpdate,
		BindDuplicateOID: func(o value.OID) {
			boundOID = o
			_, _ = updateSource.Append(updateRow(o, classOID, 42))
		},
		Savepoint: "sp1",
	}
	ctx := NewContext(0, Options{}, nil)

	rows, err := n.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rows) // the row went through the dependent UPDATE, not INSERT
	require.Equal(t, existing, boundOID)
	require.Empty(t, loc.inserted)
	require.Len(t, dependentLoc.updated, 1)
}

func TestInsertNodeWithoutReplaceOrOnDuplicateFailsOnProbedDuplicate(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{intT})
	_, err := lf.Append(tuple.Tuple{value.Int(1)})
	require.NoError(t, err)

	loc := &fakeLocator{}
	n := &InsertNode{
		Source:   lf,
		ClassOID: oid(1),
		Locator:  loc,
		ProbeUnique: func(row tuple.Tuple) (value.OID, bool, error) {
			return oid(5), true, nil
		},
		Savepoint: "sp1",
	}
	ctx := NewContext(0, Options{}, nil)

	_, err = n.Run(ctx)
	require.Error(t, err)
	require.Empty(t, loc.inserted)
}
