package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/keithlinneman/apiedge/internal/log"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	Environment       string

	HTTPPort        int
	AdminPort       int
	ShutdownTimeout time.Duration
	DrainDelay      time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string

	EnableTracing bool
	OTLPEndpoint  string
	OTLPProtocol  string
	OTLPInsecure  bool
	TraceSample   float64

	APIPrefix           string
	HealthPath          string
	TextRoutePrefix     string
	AllowedOrigin       string
	BodyLimit           int64
	BodyLimitMultiplier int
	ParameterLimit      int
	TrustedProxyHops    int
	OpenAPISpec         string
	RedactionRules      string

	ConfigSSMPath string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.StringVar(&c.Environment, "environment", "development", "deployment environment tag for logs and traces")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "max time to wait for in-flight requests on shutdown")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 15*time.Second, "time readiness fails before listeners stop")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")

	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (host:port)")
	fs.StringVar(&c.OTLPProtocol, "otlp-protocol", "grpc", "grpc|http")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", true, "disable TLS to the OTLP endpoint")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.APIPrefix, "api-prefix", "/v1", "path prefix of the business API")
	fs.StringVar(&c.HealthPath, "health-path", "/health", "unversioned liveness path")
	fs.StringVar(&c.TextRoutePrefix, "text-route-prefix", "/v1/callbacks/", "paths whose JSON bodies are kept as raw text")
	fs.StringVar(&c.AllowedOrigin, "allowed-origin", "", "CORS origin: exact value, /regexp/, or empty for none")
	fs.Int64Var(&c.BodyLimit, "body-limit", 100<<10, "base request body limit in bytes")
	fs.IntVar(&c.BodyLimitMultiplier, "body-limit-multiplier", 10, "body limit ceiling as a multiple of -body-limit")
	fs.IntVar(&c.ParameterLimit, "parameter-limit", 1000, "max fields in a urlencoded body")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "X-Forwarded-For entries appended by trusted proxies")
	fs.StringVar(&c.OpenAPISpec, "openapi-spec", "", "OpenAPI document used to validate requests (optional)")
	fs.StringVar(&c.RedactionRules, "redaction-rules", "", "YAML redaction rules file (optional)")

	fs.StringVar(&c.ConfigSSMPath, "config-ssm-path", "", "SSM parameter path to read unset flags from (optional)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		setOrRestore(fs, f, envVal, "env "+key, logf)
	})
}

// EnvKey maps flag "foo-bar" to PREFIX_FOO_BAR.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

func setOrRestore(fs *flag.FlagSet, f *flag.Flag, val, source string, logf func(string, ...any)) {
	prev := f.Value.String()
	if err := fs.Set(f.Name, val); err != nil {
		_ = fs.Set(f.Name, prev)
		if logf != nil {
			logf("flag -%s: ignoring invalid %s=%q: %v", f.Name, source, val, err)
		}
	}
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0 (got %s)", c.ShutdownTimeout))
	}
	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must be >= 0 (got %s)", c.DrainDelay))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Tracing
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		errs = append(errs, fmt.Errorf("invalid OTLP_PROTOCOL %q (must be grpc|http)", c.OTLPProtocol))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Pyroscope
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// Pipeline
	for name, p := range map[string]string{
		"API_PREFIX":        c.APIPrefix,
		"HEALTH_PATH":       c.HealthPath,
		"TEXT_ROUTE_PREFIX": c.TextRoutePrefix,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s must begin with / (got %q)", name, p))
		}
	}
	if o := c.AllowedOrigin; len(o) >= 2 && strings.HasPrefix(o, "/") && strings.HasSuffix(o, "/") {
		if _, err := regexp.Compile(o[1 : len(o)-1]); err != nil {
			errs = append(errs, fmt.Errorf("ALLOWED_ORIGIN regexp does not compile: %w", err))
		}
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("BODY_LIMIT must be > 0 (got %d)", c.BodyLimit))
	}
	if c.BodyLimitMultiplier < 1 {
		errs = append(errs, fmt.Errorf("BODY_LIMIT_MULTIPLIER must be >= 1 (got %d)", c.BodyLimitMultiplier))
	}
	if c.ParameterLimit < 1 {
		errs = append(errs, fmt.Errorf("PARAMETER_LIMIT must be >= 1 (got %d)", c.ParameterLimit))
	}
	if c.TrustedProxyHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be >= 0 (got %d)", c.TrustedProxyHops))
	}
	if c.ConfigSSMPath != "" && !strings.HasPrefix(c.ConfigSSMPath, "/") {
		errs = append(errs, fmt.Errorf("CONFIG_SSM_PATH must begin with / (got %q)", c.ConfigSSMPath))
	}

	return errors.Join(errs...)
}
