package connection_test

import (
	"runtime"
	"testing"

	"github.com/webitel/objectdb-coordinator/internal/connection"
)

func TestWeakCollectionAddContainsRemove(t *testing.T) {
	w := connection.NewWeakCollection()
	c := connection.New("", 10)

	if w.Contains(c) {
		t.Fatalf("freshly constructed collection should not contain c")
	}

	w.Add(c)
	if !w.Contains(c) {
		t.Fatalf("expected c to be a member after Add")
	}
	if w.Len() != 1 {
		t.Fatalf("expected Len() == 1, got %d", w.Len())
	}

	w.Remove(c)
	if w.Contains(c) {
		t.Fatalf("expected c to be absent after Remove")
	}
	runtime.KeepAlive(c)
}

func TestWeakCollectionAddIsIdempotent(t *testing.T) {
	w := connection.NewWeakCollection()
	c := connection.New("", 10)

	w.Add(c)
	w.Add(c)

	if n := len(w.AsList()); n != 1 {
		t.Fatalf("expected exactly one entry after double Add, got %d", n)
	}
	runtime.KeepAlive(c)
}

func TestWeakCollectionAsListDropsGarbageCollectedEntries(t *testing.T) {
	w := connection.NewWeakCollection()

	func() {
		c := connection.New("", 10)
		w.Add(c)
		runtime.KeepAlive(c)
	}()

	runtime.GC()
	runtime.GC()

	if got := w.AsList(); len(got) != 0 {
		t.Fatalf("expected collected connection to be purged, got %d survivors", len(got))
	}
	if w.Len() != 0 {
		t.Fatalf("expected Len() to reflect the purge, got %d", w.Len())
	}
}

func TestWeakCollectionKeepsReachableEntries(t *testing.T) {
	w := connection.NewWeakCollection()
	c := connection.New("", 10)
	w.Add(c)

	runtime.GC()
	runtime.GC()

	got := w.AsList()
	if len(got) != 1 || got[0] != c {
		t.Fatalf("expected the still-reachable connection to survive GC")
	}
	runtime.KeepAlive(c)
}
