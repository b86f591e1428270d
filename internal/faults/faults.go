// Package faults reports unexpected failures to the tracing backend so they
// can be found by the tracking id handed back to the client.
package faults

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/apiedge/internal/identity"
)

// Reporter records an unexpected failure against the request in ctx.
// Implementations must not block the response path.
type Reporter interface {
	Report(ctx context.Context, err error)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, error) {}

func Nop() Reporter { return nopReporter{} }

// SpanReporter records the error as an exception event on the span carried
// by the request context and marks the span failed.
type SpanReporter struct {
	reported prometheus.Counter
}

// NewSpanReporter returns a reporter backed by the active span. reported is
// incremented per report and may be nil.
func NewSpanReporter(reported prometheus.Counter) *SpanReporter {
	return &SpanReporter{reported: reported}
}

func (s *SpanReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if s.reported != nil {
		s.reported.Inc()
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if id, ok := identity.FromContext(ctx); ok && id.UserID != "" {
		span.SetAttributes(attribute.String("enduser.id", id.UserID))
	}
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}
