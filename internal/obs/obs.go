// Package obs sets up structured logging, tracing and metrics.
package obs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultService = "competeiq-api"

type Shutdown func(ctx context.Context) error

// Options configures Init. Empty fields fall back to LOG_LEVEL and
// OTEL_EXPORTER_OTLP_ENDPOINT.
type Options struct {
	ServiceName  string
	LogLevel     string
	OTLPEndpoint string
}

// Init installs the JSON logger as slog default and, when an OTLP endpoint
// is configured, a batching tracer provider.
func Init(opts Options) (Shutdown, *slog.Logger) {
	service := strings.TrimSpace(opts.ServiceName)
	if service == "" {
		service = defaultService
	}
	level := opts.LogLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})).With("service", service)
	slog.SetDefault(logger)
	SetAppInfo(service)

	endpoint := opts.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	shutdownTrace, err := initTracing(service, endpoint)
	if err != nil {
		logger.Error("init tracing failed", "error", err)
	}

	return func(ctx context.Context) error {
		var out error
		if shutdownTrace != nil {
			if err := shutdownTrace(ctx); err != nil {
				out = errors.Join(out, err)
			}
		}
		return out
	}, logger
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func initTracing(service, endpoint string) (Shutdown, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, nil
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(service)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func Tracer(name string) trace.Tracer {
	if strings.TrimSpace(name) == "" {
		name = defaultService
	}
	return otel.Tracer(name)
}
