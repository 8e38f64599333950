// Package breaker wraps a storage.Storage so a wedged backend trips open
// and fails fast instead of letting every connection checkout pile up
// waiting on it.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// Storage decorates a storage.Storage, tripping a circuit breaker around
// the calls that can block on a wedged backend: Pack and the 2PC phases.
// Load/Store and the read-only pass-throughs are left undecorated since a
// failing Load should surface immediately rather than count toward a trip
// that punishes unrelated connections.
type Storage struct {
	storage.Storage
	cb *gobreaker.CircuitBreaker
}

// New wraps s with a breaker named after s.GetName(), tripping after 5
// consecutive failures and moving from open to half-open after 30s.
func New(s storage.Storage) *Storage {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "storage:" + s.GetName(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Storage{Storage: s, cb: cb}
}

func (b *Storage) TPCBegin(ctx context.Context, txn storage.Txn, sub bool) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Storage.TPCBegin(ctx, txn, sub)
	})
	return err
}

func (b *Storage) TPCVote(ctx context.Context, txn storage.Txn) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Storage.TPCVote(ctx, txn)
	})
	return err
}

func (b *Storage) TPCFinish(ctx context.Context, txn storage.Txn) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Storage.TPCFinish(ctx, txn)
	})
	return err
}

func (b *Storage) TPCAbort(ctx context.Context, txn storage.Txn) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Storage.TPCAbort(ctx, txn)
	})
	return err
}

func (b *Storage) Pack(ctx context.Context, packTime time.Time, refs storage.ReferenceExtractor) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Storage.Pack(ctx, packTime, refs)
	})
	return err
}

// State reports the breaker's current state, for the admin HTTP surface.
func (b *Storage) State() gobreaker.State {
	return b.cb.State()
}
