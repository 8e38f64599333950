// Package pool implements ConnectionPool (§4.2): a per-namespace LIFO
// stack of idle connections, plus a weak set of every connection ever
// admitted that is still live. It carries none of the teacher registry's
// sharded-locking or actor-loop machinery — the spec is explicit that
// every method here runs under the coordinator's single lock, so the
// pool itself does no locking of its own.
package pool

import (
	"log/slog"

	"github.com/webitel/objectdb-coordinator/internal/connection"
)

// Pool is a LIFO stack of idle connections for one namespace, plus weak
// tracking of every connection ever admitted that's still live (§3).
//
// Invariants (enforced by the methods below, never by a lock of its own):
//   - every element of available is in all
//   - no element appears twice in available
//   - available never contains a connection currently checked out
type Pool struct {
	targetSize int
	all        *connection.WeakCollection
	available  []*connection.Connection

	logger *slog.Logger
}

// New constructs a pool with the given soft ceiling.
func New(targetSize int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		targetSize: targetSize,
		all:        connection.NewWeakCollection(),
		logger:     logger,
	}
}

// TargetSize reports the current soft ceiling.
func (p *Pool) TargetSize() int { return p.targetSize }

// Push registers a brand-new connection as available. Precondition: c is
// not already tracked by this pool.
func (p *Pool) Push(c *connection.Connection) {
	p.reduceSize()
	p.all.Add(c)
	p.available = append(p.available, c)

	n, limit := p.all.Len(), p.targetSize
	if n > limit {
		if n > 2*limit {
			p.logger.Error("connection pool critically oversized",
				"open", n, "target_size", limit)
		} else {
			p.logger.Warn("connection pool has more open connections than target_size",
				"open", n, "target_size", limit)
		}
	}
}

// Repush returns a previously pop()'d connection to the available stack.
// Precondition: c is tracked by this pool (in all) and not already in
// available.
func (p *Pool) Repush(c *connection.Connection) {
	p.reduceSize()
	p.available = append(p.available, c)
}

// reduceSize evicts the oldest idle connection — front of available —
// until the pool is back under target size or there's nothing idle left
// to evict. Eviction removes the connection from all as well, so from
// that point the pool (and the coordinator) holds no reference to it at
// all, strong or weak.
func (p *Pool) reduceSize() {
	for len(p.available) > 0 && p.all.Len() >= p.targetSize {
		oldest := p.available[0]
		p.available = p.available[1:]
		p.all.Remove(oldest)
	}
}

// NumAvailable reports the number of idle connections ready to hand out.
func (p *Pool) NumAvailable() int {
	return len(p.available)
}

// Pop removes and returns the most recently pushed idle connection
// (LIFO, so a freshly-closed connection with a warm cache is reused
// first). Precondition: NumAvailable() > 0. The connection remains in
// all — only available loses its strong hold — so diagnostics and
// invalidation fan-out can still see it while it's checked out.
func (p *Pool) Pop() *connection.Connection {
	n := len(p.available)
	c := p.available[n-1]
	p.available = p.available[:n-1]
	return c
}

// AllAsList returns a live snapshot of every connection this pool has
// ever admitted that's still reachable, checked out or not.
func (p *Pool) AllAsList() []*connection.Connection {
	return p.all.AsList()
}

// SetTargetSize adjusts the soft ceiling. It briefly targets n+1 before
// trimming and settling on n, so that a pool right at its old target can
// still shed its single oldest idle entry when shrinking by exactly one —
// mirroring the original _ConnectionPool.set_pool_size off-by-one dance.
func (p *Pool) SetTargetSize(n int) {
	p.targetSize = n + 1
	p.reduceSize()
	p.targetSize = n
}
