// Package grpc hosts the coordinator's admin/debug gRPC surface. This spec
// defines no object wire protocol (Non-goal), so there is no generated
// service here — only the standard health-check and reflection services,
// instrumented the same way a real RPC service would be, which is enough
// for an operator's load balancer or debugging client to probe the process.
// The cache/connection inspection surfaces live on the HTTP admin server
// (infra/server/http) as plain JSON instead of a bespoke protobuf message.
package grpc

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/webitel/objectdb-coordinator/config"
	"github.com/webitel/objectdb-coordinator/infra/server/grpc/interceptors"
)

// Module starts the admin gRPC listener as an fx-managed lifecycle hook,
// mirroring how the teacher's grpcsrv.Module starts its own listener.
var Module = fx.Module("grpc-server",
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) error {
	unary, stream := interceptors.Chain(logger)

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary),
		grpc.ChainStreamInterceptor(stream),
	)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return err
			}
			healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			go func() {
				if err := srv.Serve(lis); err != nil {
					logger.Error("grpc server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.GracefulStop()
			return nil
		},
	})
	return nil
}
