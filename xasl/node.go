// Package xasl is the plan-tree interpreter (C7): a structured recursion
// over a tree of plan nodes, each exposing the three-hook lifecycle
// (start_iterations/one_iteration/end_iterations) spec.md §4.7 describes.
// Grounded on the struct-of-bools Options pattern and constructor-
// injection idiom of datalog/executor/executor.go, generalized from a
// single flat Executor over Datalog patterns to a tree of typed plan
// nodes over list files.
package xasl

import (
	"fmt"

	"github.com/relcore/xqe/internal/xerrors"
	"github.com/relcore/xqe/tuple"
	"github.com/relcore/xqe/value"
)

// Status is a sub-plan's execution status, propagated per spec.md §7.
type Status int

const (
	StatusCleared Status = iota
	StatusRunning
	StatusSuccess
	StatusFailure
)

// Options mirrors the teacher's struct-of-bools ExecutorOptions pattern,
// generalized to the features this interpreter supports.
type Options struct {
	EnableCompositeLocking bool
	EnableDebugLogging     bool
}

// Node is the three-hook lifecycle every plan node implements.
type Node interface {
	// StartIterations allocates the output list file and any per-node
	// state (aggregators, pseudo-column counters, INSTNUM/ORDBYNUM
	// state) and returns it.
	StartIterations(ctx *Context) (*State, error)
	// OneIteration evaluates a single qualified row and appends it to
	// the node's output list file, returning false once no more rows
	// remain.
	OneIteration(ctx *Context, st *State) (bool, error)
	// EndIterations closes the output list file and, for composite-
	// locking nodes, finalizes the accumulated lock set.
	EndIterations(ctx *Context, st *State) error
}

// Context threads cross-cutting services through node evaluation:
// a savepoint handle for DML atomicity, the composite lock set, and the
// query_in_progress flag preventing the transaction manager from racing
// to tear down plan state mid-unwind.
type Context struct {
	TranIdx          int
	QueryInProgress  bool
	Opts             Options
	Locker           Locker
	savepoints       []string
	compositeLockSet map[lockKey]struct{}
}

type lockKey struct {
	instanceOID value.OID
	classOID    value.OID
}

// Locker is the lock-manager boundary: acquire/release locks on OIDs.
// The real lock manager (page/object locking, deadlock detection) is out
// of scope; this is the contract boundary a concrete adapter implements.
type Locker interface {
	Acquire(oid value.OID, exclusive bool, nonBlocking bool) (granted bool, err error)
	Release(oid value.OID)
}

func NewContext(tranIdx int, opts Options, locker Locker) *Context {
	return &Context{TranIdx: tranIdx, Opts: opts, Locker: locker, compositeLockSet: make(map[lockKey]struct{})}
}

// OpenSavepoint implements the "each DML opens a savepoint at entry"
// rule of spec.md §4.7.5.
func (c *Context) OpenSavepoint(name string) {
	c.savepoints = append(c.savepoints, name)
}

// ReleaseSavepoint pops the most recent savepoint on success.
func (c *Context) ReleaseSavepoint() {
	if len(c.savepoints) > 0 {
		c.savepoints = c.savepoints[:len(c.savepoints)-1]
	}
}

// RollbackToSavepoint is invoked on DML failure; the savepoint stack is
// unwound to (and including) name.
func (c *Context) RollbackToSavepoint(name string) {
	for i := len(c.savepoints) - 1; i >= 0; i-- {
		if c.savepoints[i] == name {
			c.savepoints = c.savepoints[:i]
			return
		}
	}
}

// addCompositeLock records the (instance-oid, class-oid) pair from a
// qualifying row's first two output columns, per spec.md §4.7.6.
func (c *Context) addCompositeLock(instanceOID, classOID value.OID) {
	c.compositeLockSet[lockKey{instanceOID, classOID}] = struct{}{}
}

// FlushCompositeLocks escalates the accumulated lock set to the lock
// manager in one batch, called from a composite-locking node's
// EndIterations. Rolls back to savepoint on failure.
func (c *Context) FlushCompositeLocks(savepoint string) error {
	for key := range c.compositeLockSet {
		granted, err := c.Locker.Acquire(key.instanceOID, true, false)
		if err != nil {
			c.RollbackToSavepoint(savepoint)
			return xerrors.Concurrencyf("flush_composite_locks", "acquire %v: %w", key.instanceOID, err)
		}
		if !granted {
			c.RollbackToSavepoint(savepoint)
			return xerrors.Concurrencyf("flush_composite_locks", "lock timeout on %v", key.instanceOID)
		}
	}
	c.compositeLockSet = make(map[lockKey]struct{})
	return nil
}

// State is the per-node working state allocated by StartIterations and
// threaded through OneIteration/EndIterations.
type State struct {
	Output       *tuple.ListFile
	CompositeLocking bool

	// Pseudo-column counters.
	Level       int
	InstNum     int
	OrdByNum    int

	// scanStopped short-circuits the scan loop once INSTNUM signals
	// "no further tuples can qualify".
	scanStopped bool
}

// NewState allocates output with the given column types. An empty id
// synthesizes a fresh query-id rather than leaving the output list file
// unidentified.
func NewState(id string, types tuple.TypeList) *State {
	qid := tuple.QueryID(id)
	if id == "" {
		qid = tuple.NewQueryID()
	}
	return &State{Output: tuple.New(qid, types)}
}

// emitRow implements the fast-path/slow-path distinction spec.md §4.7
// describes only at the level that matters for correctness here: append
// always succeeds or fails atomically; the storage-level distinction
// between inline and large-value encoding belongs to the list file, not
// the interpreter.
func (s *State) emitRow(row tuple.Tuple) error {
	_, err := s.Output.Append(row)
	if err != nil {
		return fmt.Errorf("xasl: emit row: %w", err)
	}
	return nil
}
