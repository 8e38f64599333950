// Package interceptors provides the logging and panic-recovery middleware
// chain for the debug/inspection gRPC surface. This domain has no per-call
// identity to authenticate — the server speaks only to operators over an
// admin network — so there is no analog to a stream-auth interceptor here.
package interceptors

import (
	"context"
	"log/slog"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware/v2"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Chain builds the unary and stream interceptor chains shared by every RPC
// on the debug server: structured request logging first, then panic
// recovery converting a panic into codes.Internal instead of crashing the
// process.
func Chain(logger *slog.Logger) (grpc.UnaryServerInterceptor, grpc.StreamServerInterceptor) {
	loggingIC := logging.LoggerFunc(func(_ context.Context, level logging.Level, msg string, fields ...any) {
		args := append([]any{"level", level.String()}, fields...)
		logger.Info(msg, args...)
	})

	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
		logging.WithDurationField(func(d time.Duration) logging.Fields {
			return logging.Fields{"duration_ms", d.Milliseconds()}
		}),
	}

	recoveryHandler := recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
		logger.Error("grpc: recovered from panic", "panic", p)
		return status.Errorf(codes.Internal, "internal error")
	})

	unary := grpcmiddleware.ChainUnaryServer(
		logging.UnaryServerInterceptor(loggingIC, opts...),
		recovery.UnaryServerInterceptor(recoveryHandler),
	)
	stream := grpcmiddleware.ChainStreamServer(
		logging.StreamServerInterceptor(loggingIC, opts...),
		recovery.StreamServerInterceptor(recoveryHandler),
	)
	return unary, stream
}
