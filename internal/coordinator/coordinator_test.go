package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/webitel/objectdb-coordinator/internal/connection"
	"github.com/webitel/objectdb-coordinator/internal/coordinator"
	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
	"github.com/webitel/objectdb-coordinator/internal/domain/txn"
	"github.com/webitel/objectdb-coordinator/internal/objectcache"
)

func oidN(n byte) storage.OID {
	var o storage.OID
	o[len(o)-1] = n
	return o
}

func newTestCoordinator(t *testing.T, poolSize int) *coordinator.Coordinator {
	t.Helper()
	s := storage.NewMem("test")
	c, err := coordinator.New(context.Background(), s,
		coordinator.WithDefaultPoolSize(poolSize),
		coordinator.WithNamespacePoolSize(poolSize),
	)
	if err != nil {
		t.Fatalf("unexpected error constructing coordinator: %v", err)
	}
	return c
}

func seedObject(t *testing.T, s *storage.Mem, oid storage.OID, ns storage.Namespace, payload []byte) {
	t.Helper()
	ctx := context.Background()
	h := storage.NewTxnHandle()
	if err := s.TPCBegin(ctx, h, false); err != nil {
		t.Fatalf("tpc_begin: %v", err)
	}
	if err := s.Store(ctx, oid, storage.TID{}, payload, ns, h); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.TPCVote(ctx, h); err != nil {
		t.Fatalf("tpc_vote: %v", err)
	}
	if err := s.TPCFinish(ctx, h); err != nil {
		t.Fatalf("tpc_finish: %v", err)
	}
}

func putEntry(t *testing.T, conn *connection.Connection, oid storage.OID) {
	t.Helper()
	lru, ok := conn.Cache().(*objectcache.LRU)
	if !ok {
		t.Fatalf("expected the connection's cache to be backed by *objectcache.LRU")
	}
	lru.Put(objectcache.Entry{OID: oid, State: objectcache.StateUpToDate})
}

func isGhost(t *testing.T, conn *connection.Connection, oid storage.OID) bool {
	t.Helper()
	for _, e := range conn.Cache().Items() {
		if e.OID == oid {
			return e.State == objectcache.StateGhost
		}
	}
	t.Fatalf("expected a cache entry for the given oid")
	return false
}

// --- §8 end-to-end scenarios ---

func TestWarmCacheReuse(t *testing.T) {
	c := newTestCoordinator(t, 2)
	mgr := txn.NewPerCallManager()

	c1 := c.Open("", false, mgr, false)
	c1.Close()
	c2 := c.Open("", false, mgr, false)

	if c2 != c1 {
		t.Fatalf("expected the same connection identity to be reused")
	}
}

func TestLIFOReuseOrder(t *testing.T) {
	c := newTestCoordinator(t, 2)
	mgr := txn.NewPerCallManager()

	c1 := c.Open("", false, mgr, false)
	c2 := c.Open("", false, mgr, false)
	c1.Close()
	c2.Close()

	c3 := c.Open("", false, mgr, false)
	if c3 != c2 {
		t.Fatalf("expected the most recently closed connection to be reused first")
	}
}

func TestOverflowEvictsOldestIdle(t *testing.T) {
	c := newTestCoordinator(t, 1)
	mgr := txn.NewPerCallManager()

	c1 := c.Open("", false, mgr, false)
	c2 := c.Open("", false, mgr, false)
	c1.Close()
	c2.Close()

	c3 := c.Open("", false, mgr, false)
	if c3 != c2 {
		t.Fatalf("expected the surviving (newest) connection to be reused, got a different identity")
	}
}

func TestCrossNamespaceInvalidation(t *testing.T) {
	c := newTestCoordinator(t, 2)
	mgr := txn.NewPerCallManager()

	cMain := c.Open("", false, mgr, false)
	cV := c.Open("v", false, mgr, false)

	o1 := oidN(1)
	putEntry(t, cMain, o1)
	putEntry(t, cV, o1)

	c.Invalidate(storage.TID{1}, []storage.OID{o1}, cMain, "")

	if isGhost(t, cMain, o1) {
		t.Fatalf("the originating connection must not receive its own invalidation")
	}
	if !isGhost(t, cV, o1) {
		t.Fatalf("expected a default-namespace broadcast to reach a namespaced connection")
	}

	o2 := oidN(2)
	putEntry(t, cMain, o2)
	putEntry(t, cV, o2)

	c.Invalidate(storage.TID{2}, []storage.OID{o2}, cV, "")

	if isGhost(t, cMain, o2) {
		t.Fatalf("a namespaced invalidation must not reach the default-namespace connection")
	}
}

func TestDroppedNamespaceConnectionIsDiscarded(t *testing.T) {
	c := newTestCoordinator(t, 2)
	mgr := txn.NewPerCallManager()

	cv := c.Open("v", false, mgr, false)
	c.RemoveNamespacePool("v")
	cv.Close()

	if cv.Owner() != nil {
		t.Fatalf("expected the discarded connection's owner to be cleared")
	}

	reopened := c.Open("v", false, mgr, false)
	if reopened == cv {
		t.Fatalf("expected a brand-new connection, not the discarded one")
	}
}

func TestRootBootstrapOnFreshStorage(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMem("test")

	if _, err := coordinator.New(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, _, err := s.Load(ctx, storage.RootOID, "")
	if err != nil {
		t.Fatalf("expected the root object to load after bootstrap: %v", err)
	}

	want, err := storage.EncodeEmptyRoot()
	if err != nil {
		t.Fatalf("unexpected error encoding expected root: %v", err)
	}
	if string(payload) != string(want) {
		t.Fatalf("root payload does not match the expected empty-mapping encoding")
	}

	tid, err := s.LastTransaction(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var zero storage.TID
	if tid == zero {
		t.Fatalf("expected exactly one transaction to have committed during bootstrap")
	}
}

func TestRootBootstrapSkippedWhenRootExists(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMem("test")

	if _, err := coordinator.New(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := s.LastTransaction(ctx)

	if _, err := coordinator.New(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := s.LastTransaction(ctx)

	if first != second {
		t.Fatalf("expected no additional commit when the root already exists")
	}
}

func TestPoolSizeRoundTrip(t *testing.T) {
	c := newTestCoordinator(t, 5)
	c.SetDefaultPoolSize(9)
	if c.DefaultPoolSize() != 9 {
		t.Fatalf("expected DefaultPoolSize() == 9, got %d", c.DefaultPoolSize())
	}
}

// --- §4.4 ResourceManager family ---

func TestCommitVersionInvalidatesDestAndSource(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMem("test")
	c, err := coordinator.New(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oid := oidN(9)
	seedObject(t, s, oid, "v", []byte("payload"))

	mgr := txn.NewPerCallManager()
	cMain := c.Open("", false, mgr, false)
	cV := c.Open("v", false, mgr, false)
	putEntry(t, cMain, oid)
	putEntry(t, cV, oid)

	tr := txn.NewTransaction("commit version")
	tr.Register(coordinator.NewCommitVersion(c, "v", ""))
	if err := tr.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !isGhost(t, cMain, oid) {
		t.Fatalf("expected the mainline connection to be invalidated (dest == '')")
	}
	if !isGhost(t, cV, oid) {
		t.Fatalf("expected the source namespace's connection to also be invalidated")
	}

	ns, err := s.ModifiedInNamespace(ctx, oid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != "" {
		t.Fatalf("expected the object to have moved into the mainline, got ns=%q", ns)
	}
}

func TestAbortVersionDiscardsNamespace(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMem("test")
	c, err := coordinator.New(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oid := oidN(5)
	seedObject(t, s, oid, "v", []byte("x"))

	tr := txn.NewTransaction("abort version")
	tr.Register(coordinator.NewAbortVersion(c, "v"))
	if err := tr.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := s.Load(ctx, oid, "v"); !errors.Is(err, storage.ErrNoSuchObject) {
		t.Fatalf("expected the object to be discarded, got err=%v", err)
	}
}

func TestTransactionalUndo(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMem("test")
	c, err := coordinator.New(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oid := oidN(7)
	seedObject(t, s, oid, "", []byte("new"))
	s.SeedUndo("undo-1", []storage.OID{oid}, map[storage.OID][]byte{oid: []byte("old")}, "", time.Time{})

	tr := txn.NewTransaction("undo")
	tr.Register(coordinator.NewTransactionalUndo(c, "undo-1"))
	if err := tr.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, _, err := s.Load(ctx, oid, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != "old" {
		t.Fatalf("expected undo to restore the prior payload, got %q", payload)
	}
}

func TestSubTransactionUnsupported(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMem("test")
	c, err := coordinator.New(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cv := coordinator.NewCommitVersion(c, "v", "")
	tr := txn.NewTransaction("sub")
	if err := cv.TPCBegin(ctx, tr, true); !errors.Is(err, storage.ErrSubTransactionUnsupported) {
		t.Fatalf("expected ErrSubTransactionUnsupported, got %v", err)
	}
}
