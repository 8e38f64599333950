package invalidationbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/objectdb-coordinator/config"
	"github.com/webitel/objectdb-coordinator/internal/coordinator"
	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// Module wires a Bus and a watermill Router that feeds remote invalidations
// into the local Coordinator, and contributes a coordinator.Option (the
// fan-out publisher) into the "coordinator_options" value group coordinator.
// Module consumes — exactly the way the teacher's amqp handler module wires
// a router around a registry.Hubber.
var Module = fx.Module("invalidationbus",
	fx.Provide(
		provideBus,
		provideRouter,
		fx.Annotate(
			provideOption,
			fx.ResultTags(`group:"coordinator_options"`),
		),
	),
	fx.Invoke(registerAndRun),
)

func provideBus(cfg *config.Config, logger *slog.Logger) (*Bus, error) {
	return New(Transport(cfg.Bus.Driver), cfg.Bus.AMQP, logger)
}

func provideRouter(logger *slog.Logger) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
}

// provideOption builds the coordinator.Option that forwards every locally
// applied invalidation through the Bus. The Coordinator it eventually binds
// to doesn't exist yet at this point in the fx graph, which is exactly why
// this is a publish callback rather than a direct reference.
func provideOption(bus *Bus, logger *slog.Logger) coordinator.Option {
	return coordinator.WithRemoteInvalidationPublisher(func(tid storage.TID, oids []storage.OID, ns storage.Namespace) {
		if err := bus.Publish(context.Background(), Event{TID: tid, OIDs: oids, Namespace: ns}); err != nil {
			logger.Error("invalidationbus: publish failed", "error", err)
		}
	})
}

func registerAndRun(lc fx.Lifecycle, router *message.Router, bus *Bus, coord *coordinator.Coordinator, logger *slog.Logger) error {
	router.AddNoPublisherHandler(
		"invalidation-consumer",
		Topic,
		bus.Subscriber(),
		func(msg *message.Message) error {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logger.Error("invalidationbus: discarding malformed message", "error", err)
				return nil
			}
			coord.ApplyRemoteInvalidation(ev.TID, ev.OIDs, ev.Namespace)
			return nil
		},
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("invalidationbus: router stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := router.Close(); err != nil {
				return err
			}
			return bus.Close()
		},
	})
	return nil
}
