package cmd

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"

	"github.com/webitel/objectdb-coordinator/config"
)

// ProvideLogger builds the process-wide structured logger. Records are
// emitted through otelslog so that, once a real log exporter is attached to
// the global LoggerProvider, every log line carries the trace/span id of
// whatever operation produced it — the same correlation the teacher's
// otelslog-bridged logger gives its gRPC handlers.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	handler := otelslog.NewHandler(ServiceName,
		otelslog.WithLoggerProvider(global.GetLoggerProvider()),
	)

	logger := slog.New(&levelFilterHandler{Handler: handler, level: level})
	slog.SetDefault(logger)
	return logger
}

// levelFilterHandler enforces cfg.LogLevel in front of otelslog's handler,
// which otherwise forwards every record regardless of level.
type levelFilterHandler struct {
	slog.Handler
	level slog.Level
}

func (h *levelFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.Handler.Enabled(ctx, level)
}

// ProvideTracerProvider builds the OTEL tracer provider and installs it
// globally, where the gRPC debug surface's otelgrpc handler picks it up.
// The HTTP surface and the coordinator itself record no spans.
func ProvideTracerProvider(cfg *config.Config, lc fx.Lifecycle) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceNamespace(ServiceNamespace),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}
