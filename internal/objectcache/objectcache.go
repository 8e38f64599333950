// Package objectcache defines the per-Connection object cache contract
// the Coordinator inspects and sweeps (§3, §4.3.8). The eviction policy
// behind it is explicitly out of scope for this repository — Connection
// owns it — so this package only fixes the shape the core core needs, plus
// one default, LRU-backed implementation a Connection can embed.
package objectcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// State is the persistence state of a cached object, mirroring Python's
// `ob._p_changed`: nil/ghost, unchanged, or modified.
type State int

const (
	StateGhost State = iota
	StateUpToDate
	StateChanged
)

// Entry is one cached object record, as reported by Items/ExtremeDetail.
type Entry struct {
	OID   storage.OID
	Class string
	ID    string
	State State
}

// Cache is the contract a Connection's object cache exposes to the
// Coordinator. Implementations need not be safe for concurrent use from
// multiple goroutines beyond what the Coordinator's single-lock traversal
// already implies: the Coordinator only ever calls these while holding its
// own lock, or via Connection.Invalidate/CacheGC which the Connection spec
// guarantees are safe to call from a foreign goroutine.
type Cache interface {
	Size() int
	NonGhostCount() int
	FullSweep()
	Minimize()
	LastGCTime() time.Time
	CacheSize() int
	SetCacheSize(n int)
	Items() []Entry
	Invalidate(tid storage.TID, oids []storage.OID)
	CacheGC()
}

// LRU is the default Cache implementation: an LRU of object records
// backed by hashicorp/golang-lru, sized by CacheSize. It tracks
// non-ghost membership and last-GC time the way the spec's cache
// inspection methods require.
type LRU struct {
	mu         sync.Mutex
	entries    *lru.Cache[storage.OID, Entry]
	targetSize int
	lastGC     time.Time
}

// NewLRU constructs a cache with the given target size. Size zero is
// treated as 1 (an LRU cannot hold zero entries).
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[storage.OID, Entry](size)
	return &LRU{entries: c, targetSize: size}
}

func (c *LRU) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *LRU) NonGhostCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, oid := range c.entries.Keys() {
		e, ok := c.entries.Peek(oid)
		if ok && e.State != StateGhost {
			n++
		}
	}
	return n
}

func (c *LRU) FullSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.lastGC = time.Now()
}

func (c *LRU) Minimize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, oid := range c.entries.Keys() {
		e, ok := c.entries.Peek(oid)
		if ok && e.State != StateChanged {
			e.State = StateGhost
			c.entries.Add(oid, e)
		}
	}
	c.lastGC = time.Now()
}

func (c *LRU) LastGCTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGC
}

func (c *LRU) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetSize
}

func (c *LRU) SetCacheSize(n int) {
	if n <= 0 {
		n = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetSize = n
	c.entries.Resize(n)
}

func (c *LRU) Items() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, c.entries.Len())
	for _, oid := range c.entries.Keys() {
		if e, ok := c.entries.Peek(oid); ok {
			out = append(out, e)
		}
	}
	return out
}

// Put inserts or refreshes a cache record. Not part of the Cache
// interface: it is how a Connection populates its own cache, which is
// outside this spec's scope, but the reference Connection uses it.
func (c *LRU) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(e.OID, e)
}

// Invalidate marks the given oids as ghosts, the way a real Connection's
// cache reacts to a coordinator-delivered invalidation.
func (c *LRU) Invalidate(_ storage.TID, oids []storage.OID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, oid := range oids {
		if e, ok := c.entries.Peek(oid); ok {
			e.State = StateGhost
			c.entries.Add(oid, e)
		}
	}
}

// CacheGC records a GC pass by refreshing the GC timestamp the way
// cacheLastGCTime() expects. It ghosts and evicts nothing itself:
// golang-lru already evicts on Add, so the cache never grows past its
// target size.
func (c *LRU) CacheGC() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastGC = time.Now()
}
