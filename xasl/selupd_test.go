package xasl

import (
	"testing"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
	"github.com/stretchr/testify/require"
)

type fakeSelUpdLocker struct {
	timeoutOIDs map[int32]bool
	instantOIDs map[int32]bool
	committed   []value.OID
	attached    []value.OID
}

func (f *fakeSelUpdLocker) TryAcquireExclusive(oid value.OID) (bool, bool, error) {
	if f.timeoutOIDs[oid.Volume] {
		return false, false, nil
	}
	return true, f.instantOIDs[oid.Volume], nil
}

func (f *fakeSelUpdLocker) CommitNestedAction(oid value.OID) error {
	f.committed = append(f.committed, oid)
	return nil
}

func (f *fakeSelUpdLocker) AttachNestedAction(oid value.OID) error {
	f.attached = append(f.attached, oid)
	return nil
}

func selUpdRow(vol int32, n int32) tuple.Tuple {
	return tuple.Tuple{value.OIDValue(oid(vol)), value.Int(n)}
}

func TestSelUpdNodeAppliesAndCommitsNewlyAcquiredLocks(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, intT})
	_, err := lf.Append(selUpdRow(1, 10))
	require.NoError(t, err)

	loc := &fakeSelUpdLocker{timeoutOIDs: map[int32]bool{}, instantOIDs: map[int32]bool{}}
	var appliedTo []value.OID
	n := &SelUpdNode{
		Source:  lf,
		Locator: loc,
		Apply: func(oid value.OID, row tuple.Tuple, exprs []IncrExpr) error {
			appliedTo = append(appliedTo, oid)
			return nil
		},
		Exprs: []IncrExpr{{Column: 1, Delta: 1}},
	}

	applied, err := n.Run()
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Len(t, appliedTo, 1)
	require.Len(t, loc.committed, 1)
	require.Empty(t, loc.attached)
}

func TestSelUpdNodeAttachesWhenLockWasAlreadyHeld(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, intT})
	_, err := lf.Append(selUpdRow(1, 10))
	require.NoError(t, err)

	loc := &fakeSelUpdLocker{timeoutOIDs: map[int32]bool{}, instantOIDs: map[int32]bool{1: true}}
	n := &SelUpdNode{
		Source:  lf,
		Locator: loc,
		Apply:   func(value.OID, tuple.Tuple, []IncrExpr) error { return nil },
		Exprs:   []IncrExpr{{Column: 1, Delta: -1}},
	}

	applied, err := n.Run()
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Len(t, loc.attached, 1)
	require.Empty(t, loc.committed)
}

func TestSelUpdNodeSkipsRowSilentlyOnLockTimeout(t *testing.T) {
	lf := tuple.New("q", tuple.TypeList{oidT, intT})
	_, err := lf.Append(selUpdRow(1, 10))
	require.NoError(t, err)
	_, err = lf.Append(selUpdRow(2, 20))
	require.NoError(t, err)

	loc := &fakeSelUpdLocker{timeoutOIDs: map[int32]bool{1: true}, instantOIDs: map[int32]bool{}}
	var appliedTo []value.OID
	n := &SelUpdNode{
		Source:  lf,
		Locator: loc,
		Apply: func(oid value.OID, row tuple.Tuple, exprs []IncrExpr) error {
			appliedTo = append(appliedTo, oid)
			return nil
		},
		Exprs: []IncrExpr{{Column: 1, Delta: 1}},
	}

	applied, err := n.Run()
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Equal(t, int32(2), appliedTo[0].Volume)
}
