package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/body"
	"github.com/keithlinneman/apiedge/internal/httpmw"
	"github.com/keithlinneman/apiedge/internal/log"
	"github.com/keithlinneman/apiedge/internal/xerrors"
)

const (
	defaultHealthPath = "/health"
	defaultAPIPrefix  = "/v1"
)

var (
	errNotFound         = apierr.NewDomain(http.StatusNotFound, "not_found", "Resource not found")
	errMethodNotAllowed = apierr.NewDomain(http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
)

// NewHandler builds the ingress pipeline around the business routes.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.HealthPath == "" {
		opts.HealthPath = defaultHealthPath
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = defaultAPIPrefix
	}
	errs := opts.Errors
	if errs == nil {
		errs = apierr.NewChain(apierr.Options{Logger: opts.Logger})
	}
	origin := opts.Origin
	if origin == nil {
		origin, _ = httpmw.NewOriginPolicy("")
	}

	// chi router
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.NotFound(apierr.HandlerFunc(func(http.ResponseWriter, *http.Request) error { return errNotFound }).ServeHTTP)
	r.MethodNotAllowed(apierr.HandlerFunc(func(http.ResponseWriter, *http.Request) error { return errMethodNotAllowed }).ServeHTTP)
	if opts.AppRoutes != nil {
		r.Route(opts.APIPrefix, opts.AppRoutes)
	}

	tracing := []otelhttp.Option{
		// health checks are not traced
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != opts.HealthPath }),
		// Observe renames the span to the route pattern once routing is done
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	}
	if opts.TracerProvider != nil {
		tracing = append(tracing, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	otelMW := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server", tracing...)
	}

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		apierr.Attach(errs),
		httpmw.RequestID("X-Request-Id"),
		otelMW,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		httpmw.WithLogger(opts.Logger, opts.TrustedProxyHops),
		httpmw.Recover(opts.OnPanic),
		httpmw.Liveness(opts.HealthPath),
		opts.MetricsMW,
		httpmw.NormalizeContentType(httpmw.SNSMessageTypeHeader),
		body.NewDecoder(opts.Body).Middleware(nil),
		origin.Middleware,
		httpmw.NoCache,
		httpmw.Observe(opts.Redaction),
		httpmw.BindSession(opts.Identify),
		httpmw.When(opts.Validator != nil, opts.Validator.Middleware),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
