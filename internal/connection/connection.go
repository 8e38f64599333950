// Package connection implements the Connection data model (§3) and its
// weak-tracking collection (§4.1). Connection is deliberately thin: cache
// eviction policy and pickle format are the Connection spec's business,
// not the coordinator's (§1 Non-goals), so Connection embeds a pluggable
// objectcache.Cache and otherwise only carries the bookkeeping the
// Coordinator needs to multiplex, invalidate, and pool it.
package connection

import (
	"sync"
	"time"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
	"github.com/webitel/objectdb-coordinator/internal/domain/txn"
	"github.com/webitel/objectdb-coordinator/internal/objectcache"
)

// Namespace is re-exported for callers that only import this package.
type Namespace = storage.Namespace

// Owner is the minimal surface a Connection needs of the Coordinator it's
// currently checked out from, to avoid an import cycle between this
// package and internal/coordinator. The concrete *coordinator.Coordinator
// implements it.
type Owner interface {
	CloseConnection(c *Connection)
}

// Connection is a client-side session holding an object cache and a
// transaction buffer over one namespace. It is safe to observe (Cache,
// Invalidate, CacheGC) from a foreign goroutine while its owner uses it;
// the Coordinator relies on that guarantee to enumerate and sweep live
// connections under its own lock while the application concurrently uses
// them (§5).
type Connection struct {
	namespace storage.Namespace
	cache     objectcache.Cache

	mu        sync.Mutex
	owner     Owner
	mvcc      bool
	txnMgr    txn.Manager
	synch     bool
	opened    time.Time
	debugInfo string
}

// New constructs a detached Connection for the given namespace, backed by
// cache of the given target size. It is not yet usable by application
// code until a Coordinator attaches it via Attach.
func New(ns storage.Namespace, cacheSize int) *Connection {
	return &Connection{
		namespace: ns,
		cache:     objectcache.NewLRU(cacheSize),
	}
}

// Namespace reports the namespace this connection is bound to. Empty
// string is the default/mainline namespace.
func (c *Connection) Namespace() storage.Namespace { return c.namespace }

// Cache exposes the object cache for inspection/sweeping.
func (c *Connection) Cache() objectcache.Cache { return c.cache }

// Owner reports the coordinator currently responsible for this
// connection, or nil if detached.
func (c *Connection) Owner() Owner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Attach binds the connection to coordinator c for application use
// (§4.3.2 step 4). It is called exactly once per checkout, always from
// under the coordinator's lock.
func (c *Connection) Attach(owner Owner, mvcc bool, txnMgr txn.Manager, synch bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = owner
	c.mvcc = mvcc
	c.txnMgr = txnMgr
	c.synch = synch
	c.opened = time.Now()
}

// SetOwner is used by the Coordinator to clear (or, in principle, set)
// the owner back-reference directly under its own lock, per §4.3.3 step 1
// ("set c.owner = none"). Attach is for the application-facing checkout
// path; SetOwner is for the coordinator's internal bookkeeping.
func (c *Connection) SetOwner(owner Owner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = owner
}

// Detach clears every cyclic reference to the owning coordinator. Called
// when a connection is discarded because its namespace pool has been
// removed (§3 Lifecycle, §4.3.3 step 3, §7 missing-namespace-pool).
func (c *Connection) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = nil
	c.txnMgr = nil
}

// Close returns the connection to its owning coordinator's pool. It is a
// no-op if the connection is already detached.
func (c *Connection) Close() {
	owner := c.Owner()
	if owner == nil {
		return
	}
	owner.CloseConnection(c)
}

// Invalidate notifies the connection that tid introduced new revisions of
// oids. The Coordinator calls this from under its own lock, from
// whichever goroutine triggered the commit — possibly not the goroutine
// that owns this connection — so it must be safe to call concurrently
// with the owner's own use of the connection.
func (c *Connection) Invalidate(tid storage.TID, oids []storage.OID) {
	c.cache.Invalidate(tid, oids)
}

// CacheGC runs the connection's opportunistic cache GC, as fanned out by
// Coordinator.Open step 5.
func (c *Connection) CacheGC() {
	c.cache.CacheGC()
}

// OpenedAt reports when this connection was last attached to a
// coordinator, used by ConnectionDebugInfo (§4 supplemented feature).
func (c *Connection) OpenedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// SetDebugInfo attaches a free-form string surfaced by
// ConnectionDebugInfo, mirroring ZODB Connection's `_debug_info`.
func (c *Connection) SetDebugInfo(info string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debugInfo = info
}

// DebugInfo returns the string last set by SetDebugInfo.
func (c *Connection) DebugInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugInfo
}

// MVCC reports whether this connection was opened with MVCC enabled.
// Read-isolation semantics that flag implies belong to the Connection
// spec, not this package (§1 Non-goals); the core only needs to thread
// the toggle through to the Connection.
func (c *Connection) MVCC() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mvcc
}

// Synch reports the synch flag this connection was last attached with.
// The flag is only recorded here; this package registers nothing with
// the transaction manager.
func (c *Connection) Synch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synch
}
