package xasl

import (
	"testing"

	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
	"github.com/stretchr/testify/require"
)

func TestContextSavepointStackPushPopRelease(t *testing.T) {
	ctx := NewContext(0, Options{}, nil)
	ctx.OpenSavepoint("a")
	ctx.OpenSavepoint("b")
	require.Equal(t, []string{"a", "b"}, ctx.savepoints)

	ctx.ReleaseSavepoint()
	require.Equal(t, []string{"a"}, ctx.savepoints)
}

func TestContextRollbackToSavepointUnwindsEverythingAboveIt(t *testing.T) {
	ctx := NewContext(0, Options{}, nil)
	ctx.OpenSavepoint("a")
	ctx.OpenSavepoint("b")
	ctx.OpenSavepoint("c")

	ctx.RollbackToSavepoint("a")
	require.Empty(t, ctx.savepoints)
}

func TestContextRollbackToUnknownSavepointIsANoOp(t *testing.T) {
	ctx := NewContext(0, Options{}, nil)
	ctx.OpenSavepoint("a")

	ctx.RollbackToSavepoint("does-not-exist")
	require.Equal(t, []string{"a"}, ctx.savepoints)
}

func TestFlushCompositeLocksAcquiresEveryDistinctPairOnce(t *testing.T) {
	ctx := NewContext(0, Options{}, &fakeLocker{})
	ctx.addCompositeLock(oid(1), oid(2))
	ctx.addCompositeLock(oid(1), oid(2)) // duplicate pair, must collapse to one acquire
	ctx.addCompositeLock(oid(3), oid(2))

	require.NoError(t, ctx.FlushCompositeLocks("sp"))

	locker := ctx.Locker.(*fakeLocker)
	require.Len(t, locker.acquired, 2)
	require.Empty(t, ctx.compositeLockSet)
}

func TestFlushCompositeLocksRollsBackOnTimeoutAndSurfacesConcurrencyError(t *testing.T) {
	ctx := NewContext(0, Options{}, &timeoutLocker{})
	ctx.OpenSavepoint("outer")
	ctx.OpenSavepoint("sp")
	ctx.addCompositeLock(oid(1), oid(2))

	err := ctx.FlushCompositeLocks("sp")
	require.Error(t, err)
	require.Equal(t, []string{"outer"}, ctx.savepoints)
}

type timeoutLocker struct{}

func (timeoutLocker) Acquire(value.OID, bool, bool) (bool, error) { return false, nil }
func (timeoutLocker) Release(value.OID)                           {}

func TestNewStateAllocatesEmptyOutput(t *testing.T) {
	st := NewState("q", tuple.TypeList{intT})
	require.NotNil(t, st.Output)
	require.Equal(t, 0, st.Output.Len())
}
