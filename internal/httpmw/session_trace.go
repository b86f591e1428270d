package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/apiedge/internal/identity"
	"github.com/keithlinneman/apiedge/internal/log"
)

// BindSession ties the caller identity to the request's span and logger.
// The identity comes from the context, or from identify when nothing
// upstream stored one. Anonymous requests pass through unchanged; this
// stage never rejects.
func BindSession(identify identity.Func) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, ok := identity.FromContext(ctx)
			if !ok && identify != nil {
				if id, ok = identify(r); ok {
					ctx = identity.WithContext(ctx, id)
				}
			}
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []attribute.KeyValue{attribute.String("app.auth.method", id.Method())}
			kv := []any{"app.auth.method", id.Method()}
			if id.UserID != "" {
				attrs = append(attrs, attribute.String("enduser.id", id.UserID))
				kv = append(kv, "enduser.id", id.UserID)
			}
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attrs...)
			}
			L := log.FromContext(ctx).With(kv...)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}
