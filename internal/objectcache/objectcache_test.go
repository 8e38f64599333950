package objectcache_test

import (
	"testing"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
	"github.com/webitel/objectdb-coordinator/internal/objectcache"
)

func oidN(n byte) storage.OID {
	var o storage.OID
	o[len(o)-1] = n
	return o
}

func TestLRUPutAndItems(t *testing.T) {
	c := objectcache.NewLRU(4)
	c.Put(objectcache.Entry{OID: oidN(1), Class: "Folder", ID: "f1", State: objectcache.StateUpToDate})

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Class != "Folder" {
		t.Fatalf("unexpected class %q", items[0].Class)
	}
	if c.Size() != 1 {
		t.Fatalf("expected Size() == 1, got %d", c.Size())
	}
	if c.NonGhostCount() != 1 {
		t.Fatalf("expected NonGhostCount() == 1, got %d", c.NonGhostCount())
	}
}

func TestLRUInvalidateGhosts(t *testing.T) {
	c := objectcache.NewLRU(4)
	oid := oidN(1)
	c.Put(objectcache.Entry{OID: oid, Class: "Folder", State: objectcache.StateUpToDate})

	c.Invalidate(storage.TID{}, []storage.OID{oid})

	items := c.Items()
	if len(items) != 1 || items[0].State != objectcache.StateGhost {
		t.Fatalf("expected the entry to be ghosted after Invalidate")
	}
	if c.NonGhostCount() != 0 {
		t.Fatalf("expected NonGhostCount() == 0 after ghosting, got %d", c.NonGhostCount())
	}
}

func TestLRUMinimizeSparesChanged(t *testing.T) {
	c := objectcache.NewLRU(4)
	unchanged := oidN(1)
	changed := oidN(2)
	c.Put(objectcache.Entry{OID: unchanged, State: objectcache.StateUpToDate})
	c.Put(objectcache.Entry{OID: changed, State: objectcache.StateChanged})

	c.Minimize()

	for _, e := range c.Items() {
		switch e.OID {
		case unchanged:
			if e.State != objectcache.StateGhost {
				t.Fatalf("expected unchanged entry to be ghosted by Minimize")
			}
		case changed:
			if e.State != objectcache.StateChanged {
				t.Fatalf("expected changed entry to survive Minimize intact")
			}
		}
	}
	if c.LastGCTime().IsZero() {
		t.Fatalf("expected LastGCTime to be set after Minimize")
	}
}

func TestLRUFullSweepClearsEverything(t *testing.T) {
	c := objectcache.NewLRU(4)
	c.Put(objectcache.Entry{OID: oidN(1), State: objectcache.StateChanged})

	c.FullSweep()

	if c.Size() != 0 {
		t.Fatalf("expected Size() == 0 after FullSweep, got %d", c.Size())
	}
}

func TestLRUSetCacheSizeResizes(t *testing.T) {
	c := objectcache.NewLRU(2)
	c.SetCacheSize(5)

	if c.CacheSize() != 5 {
		t.Fatalf("expected CacheSize() == 5, got %d", c.CacheSize())
	}
}
