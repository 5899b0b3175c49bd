package netmux

import (
	"sync"
	"time"

	"github.com/relcore/xqe/internal/wire"
)

// Status is a connection's lifecycle state.
type Status int

const (
	StatusOpen Status = iota
	StatusClosing
	StatusClosed
)

// WaitResult is the outcome of a blocking WaitForData call, distinguishing
// the three resume reasons spec.md §4.4 names.
type WaitResult int

const (
	ResultSuccess WaitResult = iota
	ResultNoData
	ResultInterrupted
	ResultConnectionClosed
)

// dataEntry is a received DATA payload awaiting its reader, or (while
// parked) the slot a waiter's wakeup payload is written into.
type dataEntry struct {
	payload []byte
}

// waiter is a thread parked in the data_wait queue for one request-id.
type waiter struct {
	ready     *sync.Cond
	woken     bool
	payload   []byte
	interrupt bool
	timedOut  bool
	closed    bool
}

// Connection is one multiplexed connection: lifecycle status (the socket
// itself is not held here), the six FIFO queues, a request-id
// generator, and a redirect target for "set router" forwarding.
type Connection struct {
	mu     sync.Mutex
	status Status

	ids *requestIDGenerator

	requestQueue map[uint16][]wire.Header
	dataQueue    map[uint16][]dataEntry
	dataWait     map[uint16][]*waiter
	abortSet     map[uint16]struct{}
	errorQueue   map[uint16][]wire.Header
	bufferQueue  map[uint16][][]byte

	transactionID uint32
	dbError       uint32

	redirectNodeID uint32
	redirectTarget *Connection // trans_conn: where redirected packets are spliced

	pool *bufferPool

	// Forward is called to physically send header+body to the redirect
	// target connection when one is bound. Left as an injected function
	// so tests don't need a real socket.
	Forward func(target *Connection, h wire.Header, body []byte) error
}

// New creates an OPEN connection with empty queues.
func New() *Connection {
	return &Connection{
		status:       StatusOpen,
		ids:          newRequestIDGenerator(),
		requestQueue: make(map[uint16][]wire.Header),
		dataQueue:    make(map[uint16][]dataEntry),
		dataWait:     make(map[uint16][]*waiter),
		abortSet:     make(map[uint16]struct{}),
		errorQueue:   make(map[uint16][]wire.Header),
		bufferQueue:  make(map[uint16][][]byte),
		pool:         newBufferPool(),
	}
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// AllocateRequestID hands out a fresh request-id for an outbound command.
func (c *Connection) AllocateRequestID() uint16 {
	return c.ids.Allocate()
}

// PostBuffer pre-posts a caller-supplied receive buffer for rid, so an
// incoming DATA packet is copied directly into it instead of being queued.
func (c *Connection) PostBuffer(rid uint16, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufferQueue[rid] = append(c.bufferQueue[rid], buf)
}

// HandlePacket implements the incoming-bytes state machine of spec.md
// §4.4 steps 1-6.
func (c *Connection) HandlePacket(h wire.Header, body []byte) error {
	c.mu.Lock()

	if h.Type == wire.Close {
		c.status = StatusClosed
		c.wakeAllWaitersLocked(true)
		c.mu.Unlock()
		return nil
	}

	if h.Type == wire.Abort {
		delete(c.requestQueue, h.RequestID)
		delete(c.dataQueue, h.RequestID)
		c.abortSet[h.RequestID] = struct{}{}
		c.mu.Unlock()
		return nil
	}

	if _, aborted := c.abortSet[h.RequestID]; aborted {
		// Header consumed, body drained; nothing enqueued.
		c.mu.Unlock()
		return nil
	}

	if isSetRouterFunction(h.FunctionCode) && h.NodeID != c.redirectNodeID {
		c.redirectNodeID = h.NodeID
		// Caller (the owning service) is expected to have already
		// supplied a fresh target connection via BindRedirect before
		// packets for the new node arrive; this only updates the bound
		// node id itself.
	}

	if c.redirectTarget != nil {
		h.TransactionID = c.transactionID
		target := c.redirectTarget
		fwd := c.Forward
		c.mu.Unlock()
		if fwd != nil {
			return fwd(target, h, body)
		}
		return nil
	}

	c.transactionID = h.TransactionID
	c.dbError = h.DBError

	switch h.Type {
	case wire.Command:
		c.requestQueue[h.RequestID] = append(c.requestQueue[h.RequestID], h)
	case wire.Data:
		c.deliverDataLocked(h.RequestID, body)
	case wire.Error:
		c.errorQueue[h.RequestID] = append(c.errorQueue[h.RequestID], h)
	}

	c.mu.Unlock()
	return nil
}

// isSetRouterFunction identifies the reserved function-code meaning
// "bind this connection's redirect target to the given node".
func isSetRouterFunction(code uint32) bool {
	const setRouterFunctionCode = 0xFFFFFFFE
	return code == setRouterFunctionCode
}

// BindRedirect binds (or rebinds) the forwarding target for this
// connection's current redirect node, closing any previously bound target.
func (c *Connection) BindRedirect(target *Connection) {
	c.mu.Lock()
	old := c.redirectTarget
	c.redirectTarget = target
	c.mu.Unlock()
	if old != nil && old != target {
		old.Close()
	}
}

// deliverDataLocked implements the DATA dispatch priority: pre-posted
// buffer first, then a parked waiter, else the data queue. Caller holds
// c.mu.
func (c *Connection) deliverDataLocked(rid uint16, payload []byte) {
	if bufs := c.bufferQueue[rid]; len(bufs) > 0 {
		buf := bufs[0]
		c.bufferQueue[rid] = bufs[1:]
		if len(c.bufferQueue[rid]) == 0 {
			delete(c.bufferQueue, rid)
		}
		n := copy(buf, payload)
		_ = n
		return
	}
	if waiters := c.dataWait[rid]; len(waiters) > 0 {
		w := waiters[0]
		c.dataWait[rid] = waiters[1:]
		if len(c.dataWait[rid]) == 0 {
			delete(c.dataWait, rid)
		}
		w.ready.L.Lock()
		w.payload = payload
		w.woken = true
		w.ready.Signal()
		w.ready.L.Unlock()
		return
	}
	c.dataQueue[rid] = append(c.dataQueue[rid], dataEntry{payload: payload})
}

// wakeAllWaitersLocked wakes every parked data-wait entry with the
// connection-closed outcome. Caller holds c.mu.
func (c *Connection) wakeAllWaitersLocked(closed bool) {
	for rid, waiters := range c.dataWait {
		for _, w := range waiters {
			w.ready.L.Lock()
			w.woken = true
			w.closed = closed
			w.ready.Signal()
			w.ready.L.Unlock()
		}
		delete(c.dataWait, rid)
	}
}

// WaitForData implements the blocking receive contract: check the data
// queue first, else park a waiter with an optional deadline and resume on
// arrival, timeout, or connection close. No operation in this package sets
// a waiter's interrupt flag, so ResultInterrupted is never returned.
func (c *Connection) WaitForData(rid uint16, timeout time.Duration) (WaitResult, []byte) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return ResultConnectionClosed, nil
	}
	if entries := c.dataQueue[rid]; len(entries) > 0 {
		e := entries[0]
		c.dataQueue[rid] = entries[1:]
		if len(c.dataQueue[rid]) == 0 {
			delete(c.dataQueue, rid)
		}
		c.mu.Unlock()
		return ResultSuccess, e.payload
	}

	w := &waiter{ready: sync.NewCond(&sync.Mutex{})}
	c.dataWait[rid] = append(c.dataWait[rid], w)
	c.mu.Unlock()

	return c.parkWaiter(rid, w, timeout)
}

// parkWaiter suspends on w until signaled or a deadline passes. It removes
// stale waiter registrations on timeout so no packet later arrives to a
// dead waiter.
func (c *Connection) parkWaiter(rid uint16, w *waiter, timeout time.Duration) (WaitResult, []byte) {
	done := make(chan struct{})
	var timedOut bool

	go func() {
		w.ready.L.Lock()
		for !w.woken {
			w.ready.Wait()
		}
		w.ready.L.Unlock()
		close(done)
	}()

	var timer *time.Timer
	var timerC <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timerC = timer.C
	}

	select {
	case <-done:
		if timer != nil {
			timer.Stop()
		}
	case <-timerC:
		timedOut = true
		w.ready.L.Lock()
		w.woken = true
		w.ready.Signal()
		w.ready.L.Unlock()
		<-done
	}

	c.removeWaiterIfPending(rid, w)

	switch {
	case w.closed:
		return ResultConnectionClosed, nil
	case timedOut:
		return ResultNoData, nil
	case w.interrupt:
		return ResultInterrupted, nil
	default:
		return ResultSuccess, w.payload
	}
}

// removeWaiterIfPending drops w from the data_wait queue if it is still
// registered (i.e. it was woken by timeout rather than by a producer
// already having dequeued it).
func (c *Connection) removeWaiterIfPending(rid uint16, w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.dataWait[rid]
	for i, candidate := range waiters {
		if candidate == w {
			c.dataWait[rid] = append(waiters[:i], waiters[i+1:]...)
			if len(c.dataWait[rid]) == 0 {
				delete(c.dataWait, rid)
			}
			return
		}
	}
}

// Close marks the connection CLOSED and wakes every parked waiter with
// CONNECTION_CLOSED.
func (c *Connection) Close() {
	c.mu.Lock()
	c.status = StatusClosed
	c.wakeAllWaitersLocked(true)
	c.mu.Unlock()
}

// NextRequest pops the oldest queued COMMAND header for rid, the
// "service in arrival order per request-id" rule from spec.md §4.4.
func (c *Connection) NextRequest(rid uint16) (wire.Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.requestQueue[rid]
	if len(entries) == 0 {
		return wire.Header{}, false
	}
	h := entries[0]
	c.requestQueue[rid] = entries[1:]
	if len(c.requestQueue[rid]) == 0 {
		delete(c.requestQueue, rid)
	}
	return h, true
}

// GetBuffer borrows a pool buffer of at least n bytes.
func (c *Connection) GetBuffer(n int) []byte { return c.pool.Get(n) }

// PutBuffer returns a pool buffer.
func (c *Connection) PutBuffer(buf []byte) { c.pool.Put(buf) }
