package apierr

import (
	"context"
	"net/http"
)

type ctxKey struct{}

var defaultChain = NewChain(Options{})

func WithContext(ctx context.Context, c *Chain) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the chain attached to ctx, or a chain with default
// options when none is attached.
func FromContext(ctx context.Context) *Chain {
	if ctx != nil {
		if c, ok := ctx.Value(ctxKey{}).(*Chain); ok && c != nil {
			return c
		}
	}
	return defaultChain
}

// Attach makes c available to every stage and handler below it.
func Attach(c *Chain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), c)))
		})
	}
}

// Write resolves err through the request's chain and writes the response.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	FromContext(r.Context()).ServeError(w, r, err)
}
