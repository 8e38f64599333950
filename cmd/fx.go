package cmd

import (
	"log/slog"

	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/webitel/objectdb-coordinator/config"
	grpcsrv "github.com/webitel/objectdb-coordinator/infra/server/grpc"
	httpsrv "github.com/webitel/objectdb-coordinator/infra/server/http"
	"github.com/webitel/objectdb-coordinator/internal/adapter/breaker"
	"github.com/webitel/objectdb-coordinator/internal/adapter/invalidationbus"
	"github.com/webitel/objectdb-coordinator/internal/coordinator"
	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// NewApp wires the coordinator process: a reference in-memory storage, the
// Coordinator itself, the invalidation bus, and the admin gRPC/HTTP
// surfaces — mirroring the shape of the teacher's own NewApp (storage +
// service + grpc handler + grpc server modules).
func NewApp(cfg *config.Config, flags *pflag.FlagSet) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideTracerProvider,
			provideStorage,
			fx.Annotate(
				func() coordinator.Option {
					pc := cfg.Pool
					return func(c *coordinator.Coordinator) {
						coordinator.WithDefaultPoolSize(pc.DefaultPoolSize)(c)
						coordinator.WithNamespacePoolSize(pc.NamespacePoolSize)(c)
						coordinator.WithDefaultCacheSize(pc.DefaultCacheSize)(c)
						coordinator.WithNamespaceCacheSize(pc.NamespaceCacheSize)(c)
					}
				},
				fx.ResultTags(`group:"coordinator_options"`),
			),
		),
		invalidationbus.Module,
		coordinator.Module,
		grpcsrv.Module,
		httpsrv.Module,
		fx.Invoke(func(coord *coordinator.Coordinator, logger *slog.Logger) error {
			return config.WatchPoolConfig(cfg, flags, func(pc config.PoolConfig) {
				coord.SetDefaultPoolSize(pc.DefaultPoolSize)
				coord.SetNamespacePoolSize(pc.NamespacePoolSize)
				coord.SetDefaultCacheSize(pc.DefaultCacheSize)
				coord.SetNamespaceCacheSize(pc.NamespaceCacheSize)
				logger.Info("config: pool tunables reloaded",
					"default_pool_size", pc.DefaultPoolSize,
					"namespace_pool_size", pc.NamespacePoolSize,
					"default_cache_size", pc.DefaultCacheSize,
					"namespace_cache_size", pc.NamespaceCacheSize,
				)
			})
		}),
	)
}

// provideStorage supplies the reference in-memory Storage, wrapped in a
// circuit breaker so a struggling backend's Pack and 2PC phases fail fast
// for every namespace pool rather than piling up blocked commits. A
// production deployment swaps the wrapped storage.NewMem for a real
// backend without touching anything downstream, since every consumer
// depends only on the storage.Storage interface.
func provideStorage(cfg *config.Config) storage.Storage {
	return breaker.New(storage.NewMem(cfg.Storage.DSN))
}
