package pool_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/webitel/objectdb-coordinator/internal/connection"
	"github.com/webitel/objectdb-coordinator/internal/pool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPushPopRoundTrip(t *testing.T) {
	p := pool.New(2, discardLogger())
	c := connection.New("", 10)

	p.Push(c)
	got := p.Pop()

	if got != c {
		t.Fatalf("Pop returned a different connection than was pushed")
	}
	if p.NumAvailable() != 0 {
		t.Fatalf("expected 0 available after pop, got %d", p.NumAvailable())
	}
}

func TestPopIsLIFO(t *testing.T) {
	p := pool.New(5, discardLogger())
	c1 := connection.New("", 10)
	c2 := connection.New("", 10)

	p.Push(c1)
	p.Push(c2)

	if got := p.Pop(); got != c2 {
		t.Fatalf("expected last-pushed connection first, got a different identity")
	}
	if got := p.Pop(); got != c1 {
		t.Fatalf("expected first-pushed connection last, got a different identity")
	}
}

func TestOverflowEvictsOldestIdle(t *testing.T) {
	p := pool.New(1, discardLogger())
	c1 := connection.New("", 10)
	c2 := connection.New("", 10)

	p.Push(c1)
	p.Push(c2)

	all := p.AllAsList()
	if len(all) != 1 {
		t.Fatalf("expected 1 surviving connection after overflow, got %d", len(all))
	}
	if all[0] != c2 {
		t.Fatalf("expected the newest connection to survive eviction")
	}
}

func TestSetTargetSizeOffByOne(t *testing.T) {
	p := pool.New(2, discardLogger())
	c1 := connection.New("", 10)
	c2 := connection.New("", 10)
	p.Push(c1)
	p.Push(c2)

	p.SetTargetSize(1)

	if p.TargetSize() != 1 {
		t.Fatalf("expected target size 1, got %d", p.TargetSize())
	}
	if n := len(p.AllAsList()); n != 1 {
		t.Fatalf("expected exactly 1 surviving connection after shrink, got %d", n)
	}
}

func TestRepushAfterPop(t *testing.T) {
	p := pool.New(2, discardLogger())
	c := connection.New("", 10)
	p.Push(c)
	popped := p.Pop()
	p.Repush(popped)

	if p.NumAvailable() != 1 {
		t.Fatalf("expected 1 available after repush, got %d", p.NumAvailable())
	}
	if got := p.Pop(); got != c {
		t.Fatalf("repushed connection lost its identity")
	}
}
