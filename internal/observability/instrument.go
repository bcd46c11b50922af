package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// loggerName identifies this process in exported log records.
const loggerName = "cachegate"

// noopShutdown is returned for handlers with nothing to flush.
func noopShutdown(context.Context) error { return nil }

// Instrument configures the process-wide slog default. Supported formats are
// "text" and "json" (stdout handlers) plus the OTLP export formats
// "otlp-http", "otlp-grpc" and "otlp-stdout". Exporter endpoints follow the
// standard OTEL_EXPORTER_OTLP_* environment variables.
//
// The returned shutdown function flushes any buffered export pipeline and
// must be called before process exit.
func Instrument(ctx context.Context, level slog.Level, logFormat string) (func(context.Context) error, error) {
	handler, shutdown, err := newHandler(ctx, level, logFormat)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(newTraceContextHandler(handler)))

	return shutdown, nil
}

func newHandler(ctx context.Context, level slog.Level, logFormat string) (slog.Handler, func(context.Context) error, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logFormat) {
	case "json":
		return slog.NewJSONHandler(os.Stdout, opts), noopShutdown, nil
	case "text":
		return slog.NewTextHandler(os.Stdout, opts), noopShutdown, nil
	case "otlp-http":
		exporter, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp http log exporter: %w", err)
		}
		return newExportHandler(exporter, level)
	case "otlp-grpc":
		exporter, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp grpc log exporter: %w", err)
		}
		return newExportHandler(exporter, level)
	case "otlp-stdout":
		exporter, err := stdoutlog.New()
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout log exporter: %w", err)
		}
		return newExportHandler(exporter, level)
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q (expected: text, json, otlp-http, otlp-grpc, otlp-stdout)", logFormat)
	}
}

// newExportHandler bridges slog onto an OTLP log pipeline. Severity filtering
// happens in the processor chain so disabled records are dropped before they
// are batched.
func newExportHandler(exporter sdklog.Exporter, level slog.Level) (slog.Handler, func(context.Context) error, error) {
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	handler := otelslog.NewHandler(loggerName, otelslog.WithLoggerProvider(provider))
	return handler, provider.Shutdown, nil
}

func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
