// Package identity carries the caller identity an upstream authenticator
// resolved for a request. Issuing or checking credentials happens elsewhere.
package identity

import (
	"context"
	"net/http"
)

const (
	MethodAPIKey  = "api_key"
	MethodSession = "session"
)

// Identity is the caller a request acts on behalf of.
type Identity struct {
	UserID string
	// APIKey is true when the caller authenticated with an API key rather
	// than an interactive session.
	APIKey bool
}

// Method reports how the caller authenticated.
func (id Identity) Method() string {
	if id.APIKey {
		return MethodAPIKey
	}
	return MethodSession
}

// IsZero reports an anonymous caller. An API key without a user is still a
// caller.
func (id Identity) IsZero() bool { return id.UserID == "" && !id.APIKey }

// Func resolves the identity for a request. ok is false for anonymous
// requests.
type Func func(r *http.Request) (id Identity, ok bool)

type ctxKey struct{}

func WithContext(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && !id.IsZero()
}
