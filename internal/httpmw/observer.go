package httpmw

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/apiedge/internal/body"
	"github.com/keithlinneman/apiedge/internal/log"
	"github.com/keithlinneman/apiedge/internal/redact"
)

// Observe emits one "http request" record per request on the request
// logger once the response is done. Headers and the decoded body are
// logged through rules, which never modify the request itself. A nil rules
// uses redact.Default. A handler that panics is recorded with status 500,
// which is what Recover answers, and the panic keeps unwinding.
func Observe(rules *redact.Rules) Middleware {
	if rules == nil {
		rules = redact.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w, r, start)

			completed := false
			defer func() {
				if !completed && rw.status == 0 {
					rw.status = http.StatusInternalServerError
				}
				emit(r, rw, rules, start)
			}()

			next.ServeHTTP(rw, r)
			completed = true
		})
	}
}

func emit(r *http.Request, rw *responseWriter, rules *redact.Rules, start time.Time) {
	rw.finishWriteSpan()

	ctx := r.Context()
	route := routePattern(ctx, r)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.String("http.route", route))
		span.SetName(r.Method + " " + route)
	}

	fields := []any{
		"http.request.method", r.Method,
		"url.path", r.URL.Path,
		"http.request.header", rules.Headers(r.Header),
	}
	if dec, ok := body.FromContext(ctx); ok {
		fields = append(fields, "http.request.body", rules.Body(dec.Tree()))
	}
	fields = append(fields,
		"http.response.status_code", rw.finalStatus(),
		"http.server.request.duration", time.Since(start).Seconds(),
		"http.response.body.size", rw.bytes,
		"http.route", route,
	)
	log.FromContext(ctx).Info(ctx, "http request", fields...)
}

// routePattern prefers the chi pattern and falls back to the raw path.
func routePattern(ctx context.Context, r *http.Request) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
