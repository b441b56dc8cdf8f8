package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Log attribute keys.
const (
	LogKeyTraceID = "trace_id"
	LogKeySpanID  = "span_id"
	LogKeyService = "service"
	LogKeyVersion = "version"
	LogKeyMode    = "mode"
)

type runAttrsKey struct{}

// WithRunAttrs returns a copy of ctx carrying attrs. ContextHandler appends
// them to every record logged with the returned context.
func WithRunAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev := runAttrs(ctx)

	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)

	return context.WithValue(ctx, runAttrsKey{}, merged)
}

func runAttrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(runAttrsKey{}).([]slog.Attr)

	return attrs
}

// ContextHandler is an [slog.Handler] that stamps each record with the span
// active in its context and with attributes added by WithRunAttrs. Process
// attributes (service, version, mode) are bound at construction.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler, service, version string, mode AppMode) *ContextHandler {
	process := []slog.Attr{
		slog.String(LogKeyService, service),
		slog.String(LogKeyMode, string(mode)),
	}

	if version != "" {
		process = append(process, slog.String(LogKeyVersion, version))
	}

	return &ContextHandler{next: next.WithAttrs(process)}
}

// Enabled delegates to the wrapped handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String(LogKeyTraceID, sc.TraceID().String()),
			slog.String(LogKeySpanID, sc.SpanID().String()),
		)
	}

	record.AddAttrs(runAttrs(ctx)...)

	return h.next.Handle(ctx, record)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
