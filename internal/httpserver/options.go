package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/body"
	"github.com/keithlinneman/apiedge/internal/httpmw"
	"github.com/keithlinneman/apiedge/internal/identity"
	"github.com/keithlinneman/apiedge/internal/log"
	"github.com/keithlinneman/apiedge/internal/redact"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Errors resolves every failure raised by the pipeline and the app.
	// Defaults to a chain logging through Logger with no fault reporter.
	Errors *apierr.Chain

	MetricsMW func(http.Handler) http.Handler
	OnPanic   func()

	// TracerProvider for the server span. nil uses the global provider.
	TracerProvider trace.TracerProvider

	// TrustedProxyHops is the number of proxies whose X-Forwarded-For and
	// X-Forwarded-Proto entries are believed.
	TrustedProxyHops int

	HealthPath string // default /health
	APIPrefix  string // default /v1

	Body      body.Options
	Origin    *httpmw.OriginPolicy // nil allows no cross-origin callers
	Redaction *redact.Rules        // nil uses redact.Default
	Identify  identity.Func
	Validator *httpmw.RequestValidator

	// AppRoutes registers the business routes under APIPrefix.
	AppRoutes func(r chi.Router)
}
