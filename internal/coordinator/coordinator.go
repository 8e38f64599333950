// Package coordinator implements the Connection Pool Manager, Invalidation
// Bus, and 2PC Resource Manager family (§2 C3) that together make up this
// repository's one load-bearing component. Everything else — the storage
// backend, the Connection's cache policy, the transaction manager — is an
// external collaborator the Coordinator drives but does not implement.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/objectdb-coordinator/internal/connection"
	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
	"github.com/webitel/objectdb-coordinator/internal/domain/txn"
	"github.com/webitel/objectdb-coordinator/internal/objectcache"
	"github.com/webitel/objectdb-coordinator/internal/pool"
)

// Default tunables, matching the historical ZODB DB defaults: a shorter
// pool and cache for namespaced (version) connections than the mainline.
const (
	defaultDefaultPoolSize    = 7
	defaultNamespacePoolSize  = 3
	defaultDefaultCacheSize   = 400
	defaultNamespaceCacheSize = 100
)

// Coordinator is the pool registry keyed by namespace, plus the single lock
// `L` that serializes every mutation of pools, miv_cache, and a pool's
// internals (§4.3, §5). It is the implementation of connection.Owner.
type Coordinator struct {
	mu sync.Mutex

	storage storage.Storage
	pools   map[storage.Namespace]*pool.Pool

	defaultPoolSize    int
	namespacePoolSize  int
	defaultCacheSize   int
	namespaceCacheSize int

	miv mivCache

	activityMonitor ActivityMonitor
	logger          *slog.Logger
	refExtractor    storage.ReferenceExtractor
	remotePublish   func(tid storage.TID, oids []storage.OID, ns storage.Namespace)
}

// New constructs a Coordinator over s, registers it with the storage, and
// runs the root-bootstrap sequence (§4.3.1). The storage call inside
// bootstrap runs without L: nothing else can observe this Coordinator
// until New returns.
func New(ctx context.Context, s storage.Storage, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		storage:            s,
		pools:              make(map[storage.Namespace]*pool.Pool),
		defaultPoolSize:    defaultDefaultPoolSize,
		namespacePoolSize:  defaultNamespacePoolSize,
		defaultCacheSize:   defaultDefaultCacheSize,
		namespaceCacheSize: defaultNamespaceCacheSize,
		logger:             slog.Default(),
		refExtractor:       func([]byte) ([]storage.OID, error) { return nil, nil },
	}
	for _, opt := range opts {
		opt(c)
	}

	c.storage.RegisterCoordinator(c, "")

	if err := c.bootstrapRoot(ctx); err != nil {
		return nil, fmt.Errorf("coordinator: root bootstrap: %w", err)
	}
	return c, nil
}

// bootstrapRoot implements §4.3.1 steps 3-4: substitute a no-op vote if the
// storage has none, then synthesize a root object if load(0x00...00) reports
// it missing. Any failure inside root creation propagates as-is after a
// best-effort abort (§7 "missing-root").
func (c *Coordinator) bootstrapRoot(ctx context.Context) error {
	_, _, err := c.storage.Load(ctx, storage.RootOID, "")
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNoSuchObject) {
		return err
	}

	payload, err := storage.EncodeEmptyRoot()
	if err != nil {
		return fmt.Errorf("encode empty root: %w", err)
	}

	t := storage.NewTxnHandle()
	if err := c.storage.TPCBegin(ctx, t, false); err != nil {
		return fmt.Errorf("tpc_begin: %w", err)
	}
	if err := c.storage.Store(ctx, storage.RootOID, storage.TID{}, payload, "", t); err != nil {
		_ = c.storage.TPCAbort(ctx, t)
		return fmt.Errorf("store root: %w", err)
	}
	if err := c.tpcVote(ctx, t); err != nil {
		_ = c.storage.TPCAbort(ctx, t)
		return fmt.Errorf("tpc_vote: %w", err)
	}
	if err := c.storage.TPCFinish(ctx, t); err != nil {
		return fmt.Errorf("tpc_finish: %w", err)
	}
	return nil
}

// noVoter lets a Storage declare it has nothing to vote on (§4.3.1 step 3,
// "historical compatibility"). When implemented and true, tpcVote skips the
// call through to storage.TPCVote entirely rather than relying on the
// storage's own TPCVote being a no-op.
type noVoter interface{ NoTPCVote() bool }

func (c *Coordinator) tpcVote(ctx context.Context, t storage.Txn) error {
	if nv, ok := c.storage.(noVoter); ok && nv.NoTPCVote() {
		return nil
	}
	return c.storage.TPCVote(ctx, t)
}

// poolFor fetches or lazily creates the pool for ns, sized from the
// namespace or default pool-size tunable (§4.3.2 step 1). Caller must hold
// L.
func (c *Coordinator) poolFor(ns storage.Namespace) *pool.Pool {
	if p, ok := c.pools[ns]; ok {
		return p
	}
	size := c.defaultPoolSize
	if ns != "" {
		size = c.namespacePoolSize
	}
	p := pool.New(size, c.logger)
	c.pools[ns] = p
	return p
}

// Open fetches or creates a Connection bound to ns, attaches it for
// application use, and opportunistically sweeps every live connection's
// cache before returning (§4.3.2). The entire body runs under L; the only
// blocking operation is constructing a brand-new Connection, which must not
// itself try to reacquire L.
func (c *Coordinator) Open(ns storage.Namespace, mvcc bool, txnMgr txn.Manager, synch bool) *connection.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.poolFor(ns)

	if p.NumAvailable() == 0 {
		cacheSize := c.defaultCacheSize
		if ns != "" {
			cacheSize = c.namespaceCacheSize
		}
		p.Push(connection.New(ns, cacheSize))
	}

	result := p.Pop()
	result.Attach(c, mvcc, txnMgr, synch)

	c.forEachConnectionLocked(func(cc *connection.Connection) { cc.CacheGC() })

	return result
}

// OpenDeprecated preserves the pre-rename call shape — "version" was this
// package's original name for what it now calls a namespace — for callers
// that have not migrated their call sites yet (§7 "deprecated-parameter").
func (c *Coordinator) OpenDeprecated(version storage.Namespace, mvcc bool, txnMgr txn.Manager, synch bool) *connection.Connection {
	c.logger.Warn("coordinator: Open(version=...) is deprecated, use Open(namespace=...)",
		"version", version)
	return c.Open(version, mvcc, txnMgr, synch)
}

// CloseConnection returns c to its owning pool, or discards it if its
// namespace pool has since been removed (§4.3.3). It is the implementation
// of connection.Owner, called back from Connection.Close.
func (c *Coordinator) CloseConnection(conn *connection.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn.SetOwner(nil)

	if c.activityMonitor != nil {
		c.activityMonitor.ClosedConnection(conn)
	}

	p, ok := c.pools[conn.Namespace()]
	if !ok {
		// missing-namespace-pool (§7): silently tolerated, the connection
		// is discarded rather than repushed anywhere.
		conn.Detach()
		return
	}
	p.Repush(conn)
}

// Invalidate fans out a commit's invalidations to every live connection
// except the originator, honoring the namespace confinement rule (§4.3.4).
// If origin is non-nil, ns is overridden by the origin's own namespace.
// Local commits go through Invalidate, which also forwards the event to the
// configured remote publisher (if any) so other coordinator processes
// sharing the same storage stay cache-coherent.
func (c *Coordinator) Invalidate(tid storage.TID, oids []storage.OID, origin *connection.Connection, ns storage.Namespace) {
	c.mu.Lock()
	ns = c.invalidateLocked(tid, oids, origin, ns)
	c.mu.Unlock()

	if c.remotePublish != nil {
		c.remotePublish(tid, oids, ns)
	}
}

// ApplyRemoteInvalidation applies an invalidation received from another
// coordinator process. Unlike Invalidate, it never re-forwards the event to
// the remote publisher, since doing so would echo it back out indefinitely.
func (c *Coordinator) ApplyRemoteInvalidation(tid storage.TID, oids []storage.OID, ns storage.Namespace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(tid, oids, nil, ns)
}

func (c *Coordinator) invalidateLocked(tid storage.TID, oids []storage.OID, origin *connection.Connection, ns storage.Namespace) storage.Namespace {
	if origin != nil {
		ns = origin.Namespace()
	}

	for _, oid := range oids {
		c.miv.Evict(oid)
	}

	c.forEachConnectionLocked(func(cc *connection.Connection) {
		if cc == origin {
			return
		}
		if ns == "" || cc.Namespace() == ns {
			cc.Invalidate(tid, oids)
		}
	})

	return ns
}

// ModifiedInNamespace answers which namespace last modified oid, consulting
// the miv cache before falling through to storage (§4.3.5).
func (c *Coordinator) ModifiedInNamespace(ctx context.Context, oid storage.OID) (storage.Namespace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ns, ok := c.miv.Lookup(oid); ok {
		return ns, nil
	}

	ns, err := c.storage.ModifiedInNamespace(ctx, oid)
	if err != nil {
		return "", err
	}
	c.miv.Store(oid, ns)
	return ns, nil
}

// DefaultPoolSize reports the current default-namespace pool-size tunable.
func (c *Coordinator) DefaultPoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultPoolSize
}

// NamespacePoolSize reports the current non-default-namespace pool-size
// tunable.
func (c *Coordinator) NamespacePoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.namespacePoolSize
}

// DefaultCacheSize reports the current default-namespace cache-size
// tunable.
func (c *Coordinator) DefaultCacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultCacheSize
}

// NamespaceCacheSize reports the current non-default-namespace cache-size
// tunable.
func (c *Coordinator) NamespaceCacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.namespaceCacheSize
}

// SetDefaultPoolSize updates the tunable and applies it to the default
// namespace's pool, if it exists (§4.3.6).
func (c *Coordinator) SetDefaultPoolSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultPoolSize = n
	if p, ok := c.pools[""]; ok {
		p.SetTargetSize(n)
	}
}

// SetNamespacePoolSize updates the tunable and applies it to every
// non-default-namespace pool (§4.3.6).
func (c *Coordinator) SetNamespacePoolSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespacePoolSize = n
	for ns, p := range c.pools {
		if ns != "" {
			p.SetTargetSize(n)
		}
	}
}

// SetDefaultCacheSize updates the tunable and, for the default namespace's
// pool only, pushes the new size to every live connection's cache
// (§4.3.6).
func (c *Coordinator) SetDefaultCacheSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultCacheSize = n
	if p, ok := c.pools[""]; ok {
		for _, cc := range p.AllAsList() {
			cc.Cache().SetCacheSize(n)
		}
	}
}

// SetNamespaceCacheSize updates the tunable and pushes the new size to
// every live connection in every non-default namespace pool (§4.3.6).
func (c *Coordinator) SetNamespaceCacheSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespaceCacheSize = n
	for ns, p := range c.pools {
		if ns == "" {
			continue
		}
		for _, cc := range p.AllAsList() {
			cc.Cache().SetCacheSize(n)
		}
	}
}

// RemoveNamespacePool drops ns's pool from the registry. Connections
// already checked out of it are discarded on close rather than repushed
// (§4.3.3, §4.3.6).
func (c *Coordinator) RemoveNamespacePool(ns storage.Namespace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pools, ns)
}

// Pack runs storage compaction back to t minus days. No lock is held
// during the call: storage owns its own concurrency, and pack can run
// long (§4.3.7, §5).
func (c *Coordinator) Pack(ctx context.Context, t time.Time, days float64) error {
	targetTime := t.Add(-time.Duration(days * float64(24*time.Hour)))
	if err := c.storage.Pack(ctx, targetTime, c.refExtractor); err != nil {
		c.logger.Error("coordinator: pack failed", "error", err, "target_time", targetTime)
		return fmt.Errorf("coordinator: pack: %w", err)
	}
	return nil
}

// forEachConnectionLocked invokes fn for every live connection across every
// pool. Caller must hold L.
func (c *Coordinator) forEachConnectionLocked(fn func(*connection.Connection)) {
	for _, p := range c.pools {
		for _, cc := range p.AllAsList() {
			fn(cc)
		}
	}
}

// CacheSize sums non_ghost_count across every live connection (§4.3.8).
func (c *Coordinator) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	c.forEachConnectionLocked(func(cc *connection.Connection) {
		total += cc.Cache().NonGhostCount()
	})
	return total
}

// CacheDetail aggregates live (non-ghost) object counts keyed by
// class-qualified name across every connection (§4.3.8).
func (c *Coordinator) CacheDetail() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	c.forEachConnectionLocked(func(cc *connection.Connection) {
		for _, e := range cc.Cache().Items() {
			if e.State != objectcache.StateGhost {
				out[e.Class]++
			}
		}
	})
	return out
}

// ExtremeDetailEntry is one per-object record emitted by CacheExtremeDetail.
type ExtremeDetailEntry struct {
	ConnNo int
	OID    storage.OID
	ID     string
	Class  string
	RC     int
	State  objectcache.State
}

// CacheExtremeDetail emits a per-object record for every cached entry
// across every connection (§4.3.8). RC approximates the true external
// reference count with the cache's own known retention subtracted — Go's
// tracing garbage collector exposes no refcount to subtract further, so
// the cache's single map slot is the only countable retention left.
func (c *Coordinator) CacheExtremeDetail() []ExtremeDetailEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ExtremeDetailEntry
	connNo := 0
	c.forEachConnectionLocked(func(cc *connection.Connection) {
		connNo++
		for _, e := range cc.Cache().Items() {
			out = append(out, ExtremeDetailEntry{
				ConnNo: connNo,
				OID:    e.OID,
				ID:     e.ID,
				Class:  e.Class,
				RC:     1,
				State:  e.State,
			})
		}
	})
	return out
}

// CacheFullSweep fans FullSweep out to every live connection (§4.3.8).
func (c *Coordinator) CacheFullSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachConnectionLocked(func(cc *connection.Connection) { cc.Cache().FullSweep() })
}

// CacheMinimize fans Minimize out to every live connection (§4.3.8).
func (c *Coordinator) CacheMinimize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachConnectionLocked(func(cc *connection.Connection) { cc.Cache().Minimize() })
}

// CacheLastGCTime reports the most recent cache GC across every live
// connection.
func (c *Coordinator) CacheLastGCTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var latest time.Time
	c.forEachConnectionLocked(func(cc *connection.Connection) {
		if t := cc.Cache().LastGCTime(); t.After(latest) {
			latest = t
		}
	})
	return latest
}

// CacheDetailSizeEntry reports one connection's cache occupancy, as
// surfaced by CacheDetailSize.
type CacheDetailSizeEntry struct {
	Namespace    storage.Namespace
	Size         int
	NonGhostSize int
}

// CacheDetailSize reports per-connection cache occupancy, mirroring the
// original DB.cacheDetailSize() admin introspection call.
func (c *Coordinator) CacheDetailSize() []CacheDetailSizeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CacheDetailSizeEntry
	c.forEachConnectionLocked(func(cc *connection.Connection) {
		out = append(out, CacheDetailSizeEntry{
			Namespace:    cc.Namespace(),
			Size:         cc.Cache().Size(),
			NonGhostSize: cc.Cache().NonGhostCount(),
		})
	})
	return out
}

// ConnectionDebugInfoEntry reports one connection's debug banner, as
// surfaced by ConnectionDebugInfo.
type ConnectionDebugInfoEntry struct {
	Namespace storage.Namespace
	OpenedAt  time.Time
	Info      string
}

// ConnectionDebugInfo reports the debug banner and open time of every live
// connection, mirroring the original DB.connectionDebugInfo() admin call.
func (c *Coordinator) ConnectionDebugInfo() []ConnectionDebugInfoEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ConnectionDebugInfoEntry
	c.forEachConnectionLocked(func(cc *connection.Connection) {
		out = append(out, ConnectionDebugInfoEntry{
			Namespace: cc.Namespace(),
			OpenedAt:  cc.OpenedAt(),
			Info:      cc.DebugInfo(),
		})
	})
	return out
}

// The following pass-through methods are surfaced verbatim from storage
// (§6): the coordinator adds no behavior of its own beyond forwarding.

func (c *Coordinator) History(ctx context.Context, oid storage.OID, size int) ([]storage.HistoryEntry, error) {
	return c.storage.History(ctx, oid, size)
}

func (c *Coordinator) UndoLog(ctx context.Context, first, last int) ([]storage.UndoLogEntry, error) {
	return c.storage.UndoLog(ctx, first, last)
}

func (c *Coordinator) UndoInfo(ctx context.Context, first, last int) ([]storage.UndoLogEntry, error) {
	return c.storage.UndoInfo(ctx, first, last)
}

func (c *Coordinator) SupportsUndo() bool { return c.storage.SupportsUndo() }

func (c *Coordinator) SupportsNamespaces() bool { return c.storage.SupportsNamespaces() }

func (c *Coordinator) Namespaces() ([]storage.Namespace, error) { return c.storage.Namespaces() }

func (c *Coordinator) NamespaceEmpty(ctx context.Context, ns storage.Namespace) (bool, error) {
	return c.storage.NamespaceEmpty(ctx, ns)
}

func (c *Coordinator) LastTransaction(ctx context.Context) (storage.TID, error) {
	return c.storage.LastTransaction(ctx)
}

func (c *Coordinator) GetName() string { return c.storage.GetName() }

func (c *Coordinator) GetSize(ctx context.Context) (int64, error) { return c.storage.GetSize(ctx) }

func (c *Coordinator) SortKey() string { return c.storage.SortKey() }
