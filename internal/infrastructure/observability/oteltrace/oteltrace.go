package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer from tp, or from the global provider when tp is nil.
func New(name string, tp trace.TracerProvider) observability.Tracer {
	if name == "" {
		name = "minishop-inventory"
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracer{t: tp.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
