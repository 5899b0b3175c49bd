// Package plancache implements the plan cache (C6): three indexes over a
// shared entry pool, serialized by one reader-writer lock, with victim
// selection balancing age against reference count and a racing-winner
// install protocol. Directly adapted from
// datalog/planner/cache.go's map+RWMutex+TTL shape, generalized from a
// single query-text index to the three-index, in-use-transaction-array,
// victim-selection design spec.md §4.6 requires.
package plancache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ClassID identifies a class (table) an entry references.
type ClassID int64

// PlanID is the on-disk handle for a cached plan: three 32-bit ids
// (first-page volume, first-page page, temp file-id) plus a stored time.
// Equality and hashing combine all four fields.
type PlanID struct {
	FirstPageVolume int32
	FirstPagePage   int32
	TempFileID      int32
	StoredTime      int64
}

// Entry is one cached plan. The PlanTree payload is left as an opaque
// interface{} since its shape belongs to the xasl package, not the cache.
type Entry struct {
	QueryText  string
	PlanID     PlanID
	Creator    string
	ClassIDs   []ClassID
	ReprIDs    map[ClassID]int64
	ParamCount int
	Plan       interface{}

	createdAt  time.Time
	lastUsedAt time.Time
	refCount   int64
	inUse      map[int]struct{} // transaction indexes currently holding this entry
	deleted    bool

	clones []interface{} // optional clone cache: pre-decoded plan trees
}

// Cache is the process-wide plan cache service. New returns it ready for
// use; there is no separate start step.
type Cache struct {
	mu sync.RWMutex

	byQueryText map[string]*Entry
	byPlanID    map[PlanID]*Entry
	byClassID   map[ClassID]map[*Entry]struct{}

	maxEntries int
	ttl        time.Duration

	entryPool sync.Pool // amortizes Entry allocation; oversized entries (many ClassIDs) still heap-allocate via the pool's New

	cloneLRU *cloneLRU

	hits, misses int64
}

// New creates a plan cache sized for maxEntries live entries, evicting
// entries unused for longer than ttl, with an optional process-wide clone
// LRU capped at cloneLRUCap entries (0 disables the clone cache).
func New(maxEntries int, ttl time.Duration, cloneLRUCap int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &Cache{
		byQueryText: make(map[string]*Entry),
		byPlanID:    make(map[PlanID]*Entry),
		byClassID:   make(map[ClassID]map[*Entry]struct{}),
		maxEntries:  maxEntries,
		ttl:         ttl,
		entryPool:   sync.Pool{New: func() interface{} { return &Entry{} }},
	}
	if cloneLRUCap > 0 {
		c.cloneLRU = newCloneLRU(cloneLRUCap)
	}
	return c
}

// Key computes the by_query_text lookup key for a query's text and the
// creator identity under which it was compiled (distinct users get
// distinct cache entries for the same text).
func Key(queryText, creator string) string {
	h := sha256.New()
	fmt.Fprintf(h, "TEXT:%s;CREATOR:%s;", queryText, creator)
	return hex.EncodeToString(h.Sum(nil))
}

// ReprCheck is supplied by the caller to verify a class's current
// representation id matches the one captured when the plan was compiled.
type ReprCheck func(classID ClassID) (currentReprID int64, ok bool)

// Find implements the find contract: hash by query text, verify not
// deleted / creator match / not timed out / every referenced class's
// representation id still matches, and on success register tranID into
// the entry's in-use set and refresh its last-used time.
func (c *Cache) Find(queryText, creator string, tranID int, check ReprCheck) (*Entry, bool) {
	key := Key(queryText, creator)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byQueryText[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.deleted || e.Creator != creator {
		c.evictLocked(e)
		c.misses++
		return nil, false
	}
	if time.Since(e.lastUsedAt) > c.ttl {
		c.evictLocked(e)
		c.misses++
		return nil, false
	}
	for _, classID := range e.ClassIDs {
		want := e.ReprIDs[classID]
		got, ok := check(classID)
		if !ok || got != want {
			c.evictLocked(e)
			c.misses++
			return nil, false
		}
	}

	e.inUse[tranID] = struct{}{}
	e.refCount++
	e.lastUsedAt = time.Now()
	c.hits++
	return e, true
}

// Insert implements the install contract, including the racing-winner
// check and victim selection when the cache is full.
func (c *Cache) Insert(queryText string, planID PlanID, creator string, classIDs []ClassID, reprIDs map[ClassID]int64, paramCount int, plan interface{}) (*Entry, PlanID, error) {
	key := Key(queryText, creator)

	c.mu.Lock()
	defer c.mu.Unlock()

	if winner, ok := c.byQueryText[key]; ok && !winner.deleted {
		return winner, winner.PlanID, nil
	}

	if _, exists := c.byPlanID[planID]; exists {
		return nil, PlanID{}, fmt.Errorf("plancache: duplicate plan id %+v", planID)
	}

	if len(c.byQueryText) >= c.maxEntries {
		c.runVictimSelection()
	}

	e := c.entryPool.Get().(*Entry)
	*e = Entry{
		QueryText:  queryText,
		PlanID:     planID,
		Creator:    creator,
		ClassIDs:   append([]ClassID(nil), classIDs...),
		ReprIDs:    reprIDs,
		ParamCount: paramCount,
		Plan:       plan,
		createdAt:  time.Now(),
		lastUsedAt: time.Now(),
		inUse:      make(map[int]struct{}),
	}

	c.byQueryText[key] = e
	c.byPlanID[planID] = e
	for _, classID := range classIDs {
		if c.byClassID[classID] == nil {
			c.byClassID[classID] = make(map[*Entry]struct{})
		}
		c.byClassID[classID][e] = struct{}{}
	}

	return e, planID, nil
}

// runVictimSelection implements the three-pass eviction spec.md §4.6
// describes: candidate budget 5% of max entries (oldest-created and
// least-referenced sets), victims = intersection capped at 2% (falling
// back to the union if too few), and a second pass allowing in-use
// entries to be marked deleted if the budget still cannot be met.
// Caller holds c.mu.
func (c *Cache) runVictimSelection() {
	candidateBudget := maxInt(1, c.maxEntries*5/100)
	victimBudget := maxInt(1, c.maxEntries*2/100)

	all := make([]*Entry, 0, len(c.byQueryText))
	for _, e := range c.byQueryText {
		all = append(all, e)
	}

	oldest := topN(all, candidateBudget, func(a, b *Entry) bool { return a.createdAt.Before(b.createdAt) })
	leastRef := topN(all, candidateBudget, func(a, b *Entry) bool { return a.refCount < b.refCount })

	oldestSet := toSet(oldest)
	victims := make([]*Entry, 0, victimBudget)
	for _, e := range leastRef {
		if _, ok := oldestSet[e]; ok {
			victims = append(victims, e)
		}
	}
	if len(victims) > victimBudget {
		victims = victims[:victimBudget]
	}

	if len(victims) < victimBudget {
		union := toSet(oldest)
		for _, e := range leastRef {
			union[e] = struct{}{}
		}
		victims = victims[:0]
		for e := range union {
			victims = append(victims, e)
			if len(victims) >= victimBudget {
				break
			}
		}
	}

	notInUse := victims[:0:0]
	for _, e := range victims {
		if len(e.inUse) == 0 {
			notInUse = append(notInUse, e)
		}
	}
	for _, e := range notInUse {
		c.deleteLocked(e)
	}
	if len(notInUse) > 0 {
		return
	}

	for _, e := range victims {
		c.markDeletedLocked(e)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func topN(entries []*Entry, n int, less func(a, b *Entry) bool) []*Entry {
	sorted := append([]*Entry(nil), entries...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func toSet(entries []*Entry) map[*Entry]struct{} {
	s := make(map[*Entry]struct{}, len(entries))
	for _, e := range entries {
		s[e] = struct{}{}
	}
	return s
}

// evictLocked removes a stale (timed-out / deleted / creator-mismatched)
// entry found during Find. Caller holds c.mu.
func (c *Cache) evictLocked(e *Entry) {
	c.deleteLocked(e)
}

// Delete implements the delete contract: remove from all three indexes;
// if any transaction still holds the entry, defer physical free by
// marking it deleted and removing only the query-text index entry.
func (c *Cache) Delete(planID PlanID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byPlanID[planID]
	if !ok {
		return
	}
	if len(e.inUse) > 0 {
		c.markDeletedLocked(e)
		return
	}
	c.deleteLocked(e)
}

// Release drops tranID's hold on an entry. If the entry was marked
// deleted and this was its last user, it is physically freed.
func (c *Cache) Release(planID PlanID, tranID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byPlanID[planID]
	if !ok {
		return
	}
	delete(e.inUse, tranID)
	if e.deleted && len(e.inUse) == 0 {
		c.physicallyFreeLocked(e)
	}
}

// markDeletedLocked marks e deleted and removes it from the query-text
// index only, so a new request can install a replacement while existing
// holders keep functioning via by_plan_id. Caller holds c.mu.
func (c *Cache) markDeletedLocked(e *Entry) {
	e.deleted = true
	for key, candidate := range c.byQueryText {
		if candidate == e {
			delete(c.byQueryText, key)
			break
		}
	}
}

// deleteLocked removes e from all three indexes, physically freeing it
// only if no transaction currently holds it. Caller holds c.mu.
func (c *Cache) deleteLocked(e *Entry) {
	for key, candidate := range c.byQueryText {
		if candidate == e {
			delete(c.byQueryText, key)
			break
		}
	}
	delete(c.byPlanID, e.PlanID)
	for _, classID := range e.ClassIDs {
		if set, ok := c.byClassID[classID]; ok {
			delete(set, e)
			if len(set) == 0 {
				delete(c.byClassID, classID)
			}
		}
	}
	if len(e.inUse) == 0 {
		c.physicallyFreeLocked(e)
	}
}

func (c *Cache) physicallyFreeLocked(e *Entry) {
	*e = Entry{}
	c.entryPool.Put(e)
}

// InvalidateClass implements class-change invalidation: iterate the
// class-id multimap and delete-or-mark every referencing entry.
func (c *Cache) InvalidateClass(classID ClassID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byClassID[classID]
	if !ok {
		return
	}
	entries := make([]*Entry, 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	for _, e := range entries {
		if len(e.inUse) > 0 {
			c.markDeletedLocked(e)
		} else {
			c.deleteLocked(e)
		}
	}
}

// Stats reports hit/miss counters and the current live entry count.
func (c *Cache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.byQueryText)
}
