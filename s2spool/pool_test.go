package s2spool

import (
	"testing"
	"time"

	"github.com/relcore/xqe/netmux"
	"github.com/stretchr/testify/require"
)

func dialCounting(calls *int) Dialer {
	return func(nodeID uint32, dbName string) (*netmux.Connection, error) {
		*calls++
		return netmux.New(), nil
	}
}

func TestBorrowOpensFreshConnectionUpToMax(t *testing.T) {
	var calls int
	p := New(2, "mydb", dialCounting(&calls), nil)

	c1, err := p.Borrow(1, 0, false, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, c1)

	c2, err := p.Borrow(1, 0, false, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, c2)

	require.Equal(t, 2, calls)
	_, inUse := p.Stats(1)
	require.Equal(t, 2, inUse)
}

func TestReturnMovesToFreeListForReuse(t *testing.T) {
	var calls int
	p := New(1, "mydb", dialCounting(&calls), nil)

	c1, err := p.Borrow(1, 0, false, time.Time{})
	require.NoError(t, err)
	p.Return(1, c1)

	free, inUse := p.Stats(1)
	require.Equal(t, 1, free)
	require.Equal(t, 0, inUse)

	c2, err := p.Borrow(1, 0, false, time.Time{})
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Equal(t, 1, calls, "reused connection must not re-dial")
}

func TestBorrowRegistersTwoPhaseCommitParticipant(t *testing.T) {
	var registered []int
	p := New(1, "mydb", dialCounting(new(int)), func(tranIdx int, conn *netmux.Connection) {
		registered = append(registered, tranIdx)
	})

	_, err := p.Borrow(1, 42, true, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []int{42}, registered)
}

func TestBorrowTimesOutWhenPoolExhausted(t *testing.T) {
	p := New(1, "mydb", dialCounting(new(int)), nil)
	_, err := p.Borrow(1, 0, false, time.Time{})
	require.NoError(t, err)

	start := time.Now()
	conn, err := p.Borrow(1, 0, false, start.Add(50*time.Millisecond))
	require.NoError(t, err)
	require.Nil(t, conn)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
