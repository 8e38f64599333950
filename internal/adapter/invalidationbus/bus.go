// Package invalidationbus fans a Coordinator's local invalidations out to
// other coordinator processes sharing the same storage. A single process
// never needs this — Coordinator.Invalidate already reaches every local
// connection directly — but once storage is shared, each process's
// Coordinator must hear about every other process's commits too.
package invalidationbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// Topic is the single invalidation-fan-out topic every coordinator process
// publishes to and subscribes from.
const Topic = "objectdb.invalidations"

// Event is the wire payload for one remote invalidation.
type Event struct {
	TID       storage.TID       `json:"tid"`
	OIDs      []storage.OID     `json:"oids"`
	Namespace storage.Namespace `json:"namespace"`
}

// Transport names which watermill backend a Bus instance was built with.
type Transport string

const (
	// TransportInProc uses an in-memory gochannel pub/sub: every
	// Coordinator in the same process shares invalidations with zero
	// network hop. This is the default and the only transport a single
	// process needs.
	TransportInProc Transport = "inproc"
	// TransportAMQP fans invalidations out over an AMQP broker so that
	// Coordinator processes on different hosts, sharing one storage
	// backend, stay cache-coherent.
	TransportAMQP Transport = "amqp"
)

// Bus publishes local invalidations and exposes the Subscriber a watermill
// Router consumes them from.
type Bus struct {
	publishers []message.Publisher
	sub        message.Subscriber
}

// New builds a Bus. amqpURI is ignored unless transport == TransportAMQP.
func New(transport Transport, amqpURI string, logger *slog.Logger) (*Bus, error) {
	wl := watermill.NewSlogLogger(logger)

	switch transport {
	case TransportAMQP:
		cfg := amqp.NewDurablePubSubConfig(amqpURI, nil)
		pub, err := amqp.NewPublisher(cfg, wl)
		if err != nil {
			return nil, fmt.Errorf("invalidationbus: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(cfg, wl)
		if err != nil {
			return nil, fmt.Errorf("invalidationbus: amqp subscriber: %w", err)
		}
		return &Bus{publishers: []message.Publisher{pub}, sub: sub}, nil
	default:
		pub, sub := gochannel.NewGoChannel(gochannel.Config{}, wl)
		return &Bus{publishers: []message.Publisher{pub}, sub: sub}, nil
	}
}

// AddTransport wires an additional publisher into the fan-out, e.g. an AMQP
// publisher alongside the default in-process one, so a single commit
// reaches both same-process and cross-host Coordinators.
func (b *Bus) AddTransport(pub message.Publisher) {
	b.publishers = append(b.publishers, pub)
}

// Subscriber returns the transport this Bus reads remote invalidations
// from, for a caller to register against a watermill Router.
func (b *Bus) Subscriber() message.Subscriber { return b.sub }

// Publish fans ev out to every configured transport concurrently, returning
// the first error (if any).
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("invalidationbus: marshal: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, pub := range b.publishers {
		pub := pub
		g.Go(func() error {
			msg := message.NewMessage(watermill.NewUUID(), payload)
			msg.SetContext(ctx)
			if err := pub.Publish(Topic, msg); err != nil {
				return fmt.Errorf("invalidationbus: publish: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases the underlying transports.
func (b *Bus) Close() error {
	var firstErr error
	for _, pub := range b.publishers {
		if err := pub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.sub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
