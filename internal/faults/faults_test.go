package faults

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keithlinneman/apiedge/internal/identity"
)

func TestSpanReporter_RecordsOnActiveSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "faults_reported_total"})
	r := NewSpanReporter(counter)

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	ctx = identity.WithContext(ctx, identity.Identity{UserID: "u-42"})
	r.Report(ctx, errors.New("database exploded"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]

	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "database exploded", s.Status().Description)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
	assert.Contains(t, s.Attributes(), attribute.String("enduser.id", "u-42"))
	assert.InDelta(t, 1, testutil.ToFloat64(counter), 0)
}

func TestSpanReporter_NoSpanStillCounts(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "faults_reported_total"})
	r := NewSpanReporter(counter)

	r.Report(context.Background(), errors.New("boom"))
	assert.InDelta(t, 1, testutil.ToFloat64(counter), 0)
}

func TestSpanReporter_NilErrorIgnored(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "faults_reported_total"})
	r := NewSpanReporter(counter)

	r.Report(context.Background(), nil)
	assert.InDelta(t, 0, testutil.ToFloat64(counter), 0)
}

func TestSpanReporter_NilCounter(t *testing.T) {
	NewSpanReporter(nil).Report(context.Background(), errors.New("boom"))
}

func TestNop(t *testing.T) {
	Nop().Report(context.Background(), errors.New("ignored"))
}
