package workerpresentation

import (
	"context"
	"maps"
	"slices"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventMeta describes one event delivery. Attrs must stay low-cardinality.
type EventMeta struct {
	Name  string
	ID    string
	Attrs map[string]string
}

// WithEventContext stores an event-scoped logger on ctx, the worker-side counterpart of
// the HTTP request logger. The event id is generated when empty; trace ids come from the
// span already on ctx.
func WithEventContext(ctx context.Context, base observability.Logger, meta EventMeta) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	evtID := meta.ID
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := []observability.Field{
		observability.F("event_id", evtID),
	}
	if meta.Name != "" {
		fields = append(fields, observability.F("event", meta.Name))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	for _, k := range slices.Sorted(maps.Keys(meta.Attrs)) {
		if v := meta.Attrs[k]; v != "" {
			fields = append(fields, observability.F(k, v))
		}
	}

	return logctx.With(ctx, base.With(fields...))
}
