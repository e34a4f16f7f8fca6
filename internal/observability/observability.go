// Package observability wires the process-wide slog default. Console output
// is always on; when an OTLP endpoint is configured through the standard
// OTEL environment variables, log records are additionally exported over
// OTLP/HTTP (or to stdout with the console exporter, for local debugging).
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/velocimex/uptoken"

var loggerProvider *sdklog.LoggerProvider

// Instrument installs the default slog logger at the given level and format
// ("text" or "json"). The returned error is fatal for startup; a process
// without logging configured should not run.
func Instrument(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	switch format {
	case "json":
		console = slog.NewJSONHandler(os.Stderr, opts)
	case "", "text":
		console = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	handlers := []slog.Handler{console}

	exporter, err := newExporter(context.Background())
	if err != nil {
		return fmt.Errorf("creating log exporter: %w", err)
	}
	if exporter != nil {
		processor := minsev.NewLogProcessor(
			sdklog.NewBatchProcessor(exporter),
			severityOf(level),
		)
		loggerProvider = sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
		handlers = append(handlers, otelslog.NewHandler(
			instrumentationName,
			otelslog.WithLoggerProvider(loggerProvider),
		))
	}

	if len(handlers) == 1 {
		slog.SetDefault(slog.New(handlers[0]))
	} else {
		slog.SetDefault(slog.New(fanoutHandler(handlers)))
	}
	return nil
}

// Shutdown flushes any buffered exported log records. Safe to call when no
// exporter was configured.
func Shutdown(ctx context.Context) error {
	if loggerProvider == nil {
		return nil
	}
	return loggerProvider.Shutdown(ctx)
}

// newExporter picks a log exporter from the standard OTEL environment,
// returning nil when exporting is not configured.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	switch os.Getenv("OTEL_LOGS_EXPORTER") {
	case "console":
		return stdoutlog.New()
	case "otlp":
		return otlploghttp.New(ctx)
	case "", "none":
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
			return otlploghttp.New(ctx)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported OTEL_LOGS_EXPORTER %q", os.Getenv("OTEL_LOGS_EXPORTER"))
	}
}

func severityOf(level slog.Level) minsev.Severity {
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

// fanoutHandler duplicates records to every handler, for console plus
// exporter setups.
type fanoutHandler []slog.Handler

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, hh := range h {
		if !hh.Enabled(ctx, record.Level) {
			continue
		}
		if err := hh.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanoutHandler, len(h))
	for i, hh := range h {
		next[i] = hh.WithAttrs(attrs)
	}
	return next
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	next := make(fanoutHandler, len(h))
	for i, hh := range h {
		next[i] = hh.WithGroup(name)
	}
	return next
}
