// Package s2spool implements the server-to-server connection pool (C5):
// a bounded, per-remote-node pool of outbound connections with a
// fast-path free list, a slow-path in-use list, and condition-variable
// based borrow/return, per spec.md §4.5. All pooled connections flow
// through netmux (C4) for reads once opened.
package s2spool

import (
	"fmt"
	"sync"
	"time"

	"github.com/relcore/xqe/netmux"
)

// Dialer opens a fresh outbound connection to a remote node, performing
// the two-phase handshake: send MAGIC, send DATA_REQUEST with the
// database name, read the reply; on a "reconnect to new port" reply,
// close and redo against the new port without resending MAGIC.
type Dialer func(nodeID uint32, dbName string) (*netmux.Connection, error)

// Participant registers a borrower as a two-phase-commit participant for
// a transaction, invoked on every successful non-nil-transaction borrow.
type Participant func(tranIdx int, conn *netmux.Connection)

type nodePool struct {
	mu   sync.Mutex
	cond *sync.Cond

	free  []*netmux.Connection
	inUse map[*netmux.Connection]struct{}

	max int
}

func newNodePool(max int) *nodePool {
	p := &nodePool{inUse: make(map[*netmux.Connection]struct{}), max: max}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *nodePool) size() int {
	return len(p.free) + len(p.inUse)
}

// Pool is the process-wide S2S connection service: one bounded nodePool
// per remote node-id, created lazily.
type Pool struct {
	mu    sync.Mutex
	nodes map[uint32]*nodePool

	maxPerNode int
	dbName     string
	dial       Dialer
	onBorrow   Participant
}

// New creates a pool bounding each remote node to maxPerNode connections.
func New(maxPerNode int, dbName string, dial Dialer, onBorrow Participant) *Pool {
	if maxPerNode <= 0 {
		maxPerNode = 1
	}
	if onBorrow == nil {
		onBorrow = func(int, *netmux.Connection) {}
	}
	return &Pool{nodes: make(map[uint32]*nodePool), maxPerNode: maxPerNode, dbName: dbName, dial: dial, onBorrow: onBorrow}
}

func (p *Pool) poolFor(nodeID uint32) *nodePool {
	p.mu.Lock()
	defer p.mu.Unlock()
	np, ok := p.nodes[nodeID]
	if !ok {
		np = newNodePool(p.maxPerNode)
		p.nodes[nodeID] = np
	}
	return np
}

// Borrow implements the borrow contract: free list first, then a fresh
// connection within the bound, then wait on the pool's condition
// variable until a connection is returned or deadline passes.
func (p *Pool) Borrow(nodeID uint32, tranIdx int, hasTran bool, deadline time.Time) (*netmux.Connection, error) {
	np := p.poolFor(nodeID)

	np.mu.Lock()
	for {
		if len(np.free) > 0 {
			last := len(np.free) - 1
			conn := np.free[last]
			np.free = np.free[:last]
			np.inUse[conn] = struct{}{}
			np.mu.Unlock()
			if hasTran {
				p.onBorrow(tranIdx, conn)
			}
			return conn, nil
		}

		if np.size() < np.max {
			np.mu.Unlock()
			conn, err := p.dial(nodeID, p.dbName)
			if err != nil {
				return nil, fmt.Errorf("s2spool: dial node %d: %w", nodeID, err)
			}
			np.mu.Lock()
			np.inUse[conn] = struct{}{}
			np.mu.Unlock()
			if hasTran {
				p.onBorrow(tranIdx, conn)
			}
			return conn, nil
		}

		if deadline.IsZero() {
			np.cond.Wait()
			continue
		}
		if !waitUntil(np.cond, deadline) {
			np.mu.Unlock()
			return nil, nil
		}
	}
}

// waitUntil waits on cond until signaled or deadline passes, returning
// false on timeout. sync.Cond has no timed wait, so a timer goroutine
// broadcasts the condition variable at the deadline to unblock every
// waiter for a re-check. cond.L must be held by the caller on entry; it
// is held again on return in both cases.
func waitUntil(cond *sync.Cond, deadline time.Time) bool {
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return false
	}
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()

	cond.Wait()
	return !time.Now().After(deadline)
}

// Return moves conn from in-use to free and signals a waiting borrower.
func (p *Pool) Return(nodeID uint32, conn *netmux.Connection) {
	np := p.poolFor(nodeID)
	np.mu.Lock()
	delete(np.inUse, conn)
	np.free = append(np.free, conn)
	np.mu.Unlock()
	np.cond.Signal()
}

// Stats reports the free/in-use counts for a node, for tests and
// diagnostics.
func (p *Pool) Stats(nodeID uint32) (free, inUse int) {
	np := p.poolFor(nodeID)
	np.mu.Lock()
	defer np.mu.Unlock()
	return len(np.free), len(np.inUse)
}
