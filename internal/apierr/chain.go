package apierr

import (
	"context"
	"net/http"

	"github.com/keithlinneman/apiedge/internal/faults"
	"github.com/keithlinneman/apiedge/internal/log"
	"github.com/keithlinneman/apiedge/internal/otelx"
)

// Resolver claims the errors it understands. ok is false to defer to the
// next resolver. Resolvers must not modify err.
type Resolver interface {
	Resolve(ctx context.Context, err error) (res Resolution, ok bool)
}

type ResolverFunc func(ctx context.Context, err error) (Resolution, bool)

func (f ResolverFunc) Resolve(ctx context.Context, err error) (Resolution, bool) { return f(ctx, err) }

// Observer is told about every resolved error. metrics.ServerMetrics
// satisfies it.
type Observer interface {
	ObserveError(kind, code, subCode string)
}

type Options struct {
	// Logger is used when the request context carries no logger.
	Logger   log.Logger
	Reporter faults.Reporter
	Observer Observer
	// TraceID returns the tracking id quoted in 500 responses. Defaults to
	// otelx.TraceID.
	TraceID func(ctx context.Context) string
	// Extra resolvers run after the built-in ones and before the fallback.
	Extra []Resolver
}

// Chain resolves errors through an ordered list of resolvers. The last
// resolver always claims the error. A Chain is immutable and safe for
// concurrent use.
type Chain struct {
	resolvers []Resolver
	logger    log.Logger
	observer  Observer
}

func NewChain(o Options) *Chain {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Reporter == nil {
		o.Reporter = faults.Nop()
	}
	if o.TraceID == nil {
		o.TraceID = otelx.TraceID
	}

	rs := []Resolver{
		&ValidationResolver{Logger: o.Logger},
		&MalformedBodyResolver{Logger: o.Logger},
		&DomainResolver{},
	}
	rs = append(rs, o.Extra...)
	rs = append(rs, &Fallback{Logger: o.Logger, Reporter: o.Reporter, TraceID: o.TraceID})

	return &Chain{resolvers: rs, logger: o.Logger, observer: o.Observer}
}


func (c *Chain) Resolve(ctx context.Context, err error) Resolution {
	for _, r := range c.resolvers {
		res, ok := r.Resolve(ctx, err)
		if !ok {
			continue
		}
		if c.observer != nil {
			c.observer.ObserveError(string(res.Kind), res.Envelope.Code, res.SubCode)
		}
		return res
	}
	// unreachable with a Fallback in place
	return internalResolution("")
}

// ServeError resolves err and writes the envelope. When the response has
// already been started nothing is written and the late error is logged.
func (c *Chain) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	res := c.Resolve(ctx, err)

	if responseStarted(w) {
		loggerFor(ctx, c.logger).Warn(ctx, "error after response started",
			"error.kind", string(res.Kind),
			"error.code", res.Envelope.Code,
			"http.response.status_code", res.Status,
		)
		return
	}
	if werr := Emit(w, res.Status, res.Envelope); werr != nil {
		loggerFor(ctx, c.logger).Warn(ctx, "error response write failed", "err", werr.Error())
	}
}

// statusReporter is implemented by the response writer wrappers in httpmw
// and metrics. Status returns 0 until the header is written.
type statusReporter interface {
	Status() int
}

// responseStarted looks through wrappers that do not track status, such as
// chi's compress writer, via Unwrap.
func responseStarted(w http.ResponseWriter) bool {
	for w != nil {
		if sr, ok := w.(statusReporter); ok && sr.Status() != 0 {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}

func loggerFor(ctx context.Context, base log.Logger) log.Logger {
	if l, ok := log.Lookup(ctx); ok {
		return l
	}
	if base == nil {
		return log.Nop()
	}
	return base
}
