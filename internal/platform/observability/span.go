package observability

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EndSpan records the outcome of an operation on span and ends it.
func EndSpan(span trace.Span, err error, okDescription string) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, okDescription)
	}
	span.End()
}
