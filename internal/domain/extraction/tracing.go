package extraction

import (
	"context"

	"github.com/okian/halfpace/internal/domain/features"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanName is the name of the span opened around every extraction call.
const SpanName = "extraction.extract"

type tracedExtractor struct {
	next   Extractor
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

// WithTracing wraps next so every call runs inside a span carrying attrs,
// the input length and which fields were found.
func WithTracing(next Extractor, tracer trace.Tracer, attrs ...attribute.KeyValue) Extractor {
	return &tracedExtractor{next: next, tracer: tracer, attrs: attrs}
}

func (t *tracedExtractor) Extract(ctx context.Context, text string) (features.Extracted, error) {
	ctx, span := t.tracer.Start(ctx, SpanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(t.attrs...)
	span.SetAttributes(attribute.Int("input.length", len(text)))

	f, err := t.next.Extract(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return f, err
	}

	span.SetAttributes(
		attribute.Bool("output.sex", f.Sex != nil),
		attribute.Bool("output.age", f.Age != nil),
		attribute.Bool("output.time_5km_seconds", f.Time5kmSeconds != nil),
		attribute.StringSlice("output.missing", features.Missing(f)),
	)
	return f, nil
}
