package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/body"
	"github.com/keithlinneman/apiedge/internal/callbacks"
	"github.com/keithlinneman/apiedge/internal/cfg"
	"github.com/keithlinneman/apiedge/internal/faults"
	"github.com/keithlinneman/apiedge/internal/health"
	"github.com/keithlinneman/apiedge/internal/httpmw"
	"github.com/keithlinneman/apiedge/internal/httpserver"
	"github.com/keithlinneman/apiedge/internal/log"
	"github.com/keithlinneman/apiedge/internal/metrics"
	"github.com/keithlinneman/apiedge/internal/opshttp"
	"github.com/keithlinneman/apiedge/internal/otelx"
	"github.com/keithlinneman/apiedge/internal/prof"
	"github.com/keithlinneman/apiedge/internal/redact"
	v "github.com/keithlinneman/apiedge/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags, env and optionally ssm
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	stderrf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	cfg.FillFromEnv(flag.CommandLine, "APIEDGE_", stderrf)

	if conf.ConfigSSMPath != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "aws config error:", err)
			os.Exit(1)
		}
		if err := cfg.FillFromSSM(ctx, flag.CommandLine, ssm.NewFromConfig(awsCfg), conf.ConfigSSMPath, stderrf); err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
	}

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging, levels were checked by Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		stackLvl, _ = log.ParseLevel(conf.StacktraceLevel)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Environment:       conf.Environment,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSONFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildID,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"environment", conf.Environment,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"api_prefix", conf.APIPrefix,
		"health_path", conf.HealthPath,
		"text_route_prefix", conf.TextRoutePrefix,
		"allowed_origin", conf.AllowedOrigin,
		"body_limit", conf.BodyLimit,
		"body_limit_multiplier", conf.BodyLimitMultiplier,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"openapi_spec", conf.OpenAPISpec,
		"redaction_rules", conf.RedactionRules,
		"config_ssm_path", conf.ConfigSSMPath,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"otlp_protocol", conf.OTLPProtocol,
		"trace_sample", conf.TraceSample,
	)

	// Setup metrics
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":         v.AppName,
			"component":   "server",
			"version":     vi.Version,
			"commit":      vi.Commit,
			"environment": conf.Environment,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	// Setup otel, spans are always created so 500s can quote a trace id
	telemetry, err := otelx.New(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Protocol:    conf.OTLPProtocol,
		Insecure:    conf.OTLPInsecure,
		Sample:      conf.TraceSample,
		Service:     v.AppName,
		Component:   "server",
		Version:     vi.Version,
		Environment: conf.Environment,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		os.Exit(1)
	}

	rules := redact.Default()
	if conf.RedactionRules != "" {
		if rules, err = redact.LoadFile(conf.RedactionRules); err != nil {
			L.Error(ctx, err, "failed to load redaction rules", "path", conf.RedactionRules)
			os.Exit(1)
		}
	}
	L.Info(ctx, "redaction rules loaded", "redact.headers", rules.HeaderNames())

	origin, err := httpmw.NewOriginPolicy(conf.AllowedOrigin)
	if err != nil {
		L.Error(ctx, err, "invalid allowed origin")
		os.Exit(1)
	}

	var validator *httpmw.RequestValidator
	if conf.OpenAPISpec != "" {
		doc, err := httpmw.LoadOpenAPI(ctx, conf.OpenAPISpec)
		if err != nil {
			L.Error(ctx, err, "failed to load openapi document", "path", conf.OpenAPISpec)
			os.Exit(1)
		}
		if validator, err = httpmw.NewRequestValidator(doc); err != nil {
			L.Error(ctx, err, "failed to build request validator")
			os.Exit(1)
		}
	}

	errs := apierr.NewChain(apierr.Options{
		Logger:   L,
		Reporter: faults.NewSpanReporter(m.FaultReports()),
		Observer: m,
	})

	sns := callbacks.NewSNS(callbacks.SNSOptions{
		OnNotification: func(ctx context.Context, msg callbacks.Message) error {
			log.FromContext(ctx).Info(ctx, "sns notification", "sns.subject", msg.Subject)
			return nil
		},
		OnAccepted: m.IncCallbackMessage,
	})

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// start api http server
	apiHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:           L,
		Port:             conf.HTTPPort,
		Errors:           errs,
		MetricsMW:        m.Middleware,
		OnPanic:          m.IncHttpPanic,
		TracerProvider:   telemetry.TracerProvider(),
		TrustedProxyHops: conf.TrustedProxyHops,
		HealthPath:       conf.HealthPath,
		APIPrefix:        conf.APIPrefix,
		Body: body.Options{
			BaseLimit:       conf.BodyLimit,
			LimitMultiplier: int64(conf.BodyLimitMultiplier),
			TextRoutePrefix: conf.TextRoutePrefix,
			ParameterLimit:  conf.ParameterLimit,
		},
		Origin:    origin,
		Redaction: rules,
		Validator: validator,
		AppRoutes: func(r chi.Router) {
			sns.RegisterRoutes(r)
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}

	// start admin/ops listener to serve metrics, health checks and pprof
	// requests from public addresses are rejected in middleware
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   gate.Probe(),
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		_ = apiHTTPStop(context.Background())
		os.Exit(1)
	}

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Drain("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_delay", conf.DrainDelay)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, conf.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return apiHTTPStop(shutdownCtx) })
	g.Go(func() error { return opsHTTPStop(shutdownCtx) })
	if err := g.Wait(); err != nil {
		L.Error(bg, err, "http server shutdown")
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "shutdown complete")
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
