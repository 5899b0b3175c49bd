// Package diag implements the optional diagnostic shared-memory sidecar
// described in spec.md §6: a per-server segment keyed by
// hash(db_path)&0x00FFFFFF (key collisions are not probed), holding a
// fixed magic, the server name, thread count, and one counter row per
// worker thread. Counters are updated without synchronization by their
// owning thread; readers tolerate torn reads. Since the real
// implementation is an actual POSIX/SysV shared memory segment (out of
// scope for a portable Go engine), this is expressed as an in-process
// byte-addressable region any attached reader process would instead reach
// through shared mmap -- the layout and update discipline are what this
// package is grounded on, not the transport.
package diag

import (
	"encoding/binary"
	"hash/fnv"
	"sync/atomic"
)

// Magic is the fixed layout magic the spec names literally.
const Magic uint32 = 07115

// Row is one worker thread's counters, matching the field list in
// spec.md §6.
type Row struct {
	QueryOpenPages     uint32
	QueryOpenedPages   uint32
	SlowQueries        uint32
	FullScans          uint32
	ClientRequests     uint32
	AbortedClients     uint32
	ConnectionRequests uint32
	ConnectionRejects  uint32
	BufferPageReads    uint32
	BufferPageWrites   uint32
	LockDeadlocks      uint32
	LockRequests       uint32
}

const rowFieldCount = 12
const rowSize = rowFieldCount * 4

// Segment is the per-server diagnostic segment: magic, server name,
// thread count, and one Row per thread, held as a flat slice of 32-bit
// words so its
// layout matches what an external reader attached to the same key would
// see.
type Segment struct {
	key        uint32
	serverName string
	rows       []uint32 // rowFieldCount*32-bit words per row, laid out contiguously
	threads    int
}

// Key derives the per-server shared-memory key from the database path:
// hash(db_path) & 0x00FFFFFF. No collision probing is done: NewSegment
// uses this key as is.
func Key(dbPath string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(dbPath))
	return h.Sum32() & 0x00FFFFFF
}

// NewSegment allocates a segment for threads worker threads.
func NewSegment(dbPath, serverName string, threads int) *Segment {
	return &Segment{
		key:        Key(dbPath),
		serverName: serverName,
		rows:       make([]uint32, rowFieldCount*threads),
		threads:    threads,
	}
}

func (s *Segment) Key() uint32          { return s.key }
func (s *Segment) ServerName() string   { return s.serverName }
func (s *Segment) ThreadCount() int     { return s.threads }

func (s *Segment) wordIndex(threadIdx int, field int) int {
	return threadIdx*rowFieldCount + field
}

// Increment bumps one counter field for threadIdx, unsynchronized:
// the owning thread is expected to be the sole writer of its own row.
func (s *Segment) Increment(threadIdx int, field int) {
	idx := s.wordIndex(threadIdx, field)
	atomic.AddUint32(&s.rows[idx], 1)
}

// ReadRow copies out threadIdx's row. Concurrent writers mean the read
// may observe a torn snapshot; callers must tolerate that per spec.md §6.
func (s *Segment) ReadRow(threadIdx int) Row {
	get := func(field int) uint32 {
		return atomic.LoadUint32(&s.rows[s.wordIndex(threadIdx, field)])
	}
	return Row{
		QueryOpenPages:     get(0),
		QueryOpenedPages:   get(1),
		SlowQueries:        get(2),
		FullScans:          get(3),
		ClientRequests:     get(4),
		AbortedClients:     get(5),
		ConnectionRequests: get(6),
		ConnectionRejects:  get(7),
		BufferPageReads:    get(8),
		BufferPageWrites:   get(9),
		LockDeadlocks:      get(10),
		LockRequests:       get(11),
	}
}

// Field indices into a Row's word layout, named for Increment callers.
const (
	FieldQueryOpenPages = iota
	FieldQueryOpenedPages
	FieldSlowQueries
	FieldFullScans
	FieldClientRequests
	FieldAbortedClients
	FieldConnectionRequests
	FieldConnectionRejects
	FieldBufferPageReads
	FieldBufferPageWrites
	FieldLockDeadlocks
	FieldLockRequests
)

// EncodeHeader serializes the segment header (magic, key, thread count,
// server name length, then the name bytes) for a hypothetical external
// reader attaching by key.
func (s *Segment) EncodeHeader() []byte {
	nameBytes := []byte(s.serverName)
	buf := make([]byte, 4+4+4+4+len(nameBytes))
	binary.BigEndian.PutUint32(buf[0:], Magic)
	binary.BigEndian.PutUint32(buf[4:], s.key)
	binary.BigEndian.PutUint32(buf[8:], uint32(s.threads))
	binary.BigEndian.PutUint32(buf[12:], uint32(len(nameBytes)))
	copy(buf[16:], nameBytes)
	return buf
}
