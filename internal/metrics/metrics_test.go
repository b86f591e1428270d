package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/apiedge/internal/version"
)

// New

func TestNew_RegistryPopulated(t *testing.T) {
	m := New()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// non-Vec metrics appear before any observation
	for _, name := range []string{
		"http_inflight_requests",
		"http_panic_total",
		"api_fault_reports_total",
		"profiling_active",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %q not found in /metrics output", name)
		}
	}
}

func TestHandler_ContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	New().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "text/plain") && !strings.Contains(ct, "openmetrics") {
		t.Fatalf("Content-Type = %q, want text/plain or openmetrics", ct)
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	m1 := New()
	m2 := New()

	m1.IncHttpPanic()
	m1.IncHttpPanic()

	if v := counterValue(t, m1.reg, "http_panic_total"); v != 2 {
		t.Fatalf("m1 panic count = %f, want 2", v)
	}
	if v := counterValue(t, m2.reg, "http_panic_total"); v != 0 {
		t.Fatalf("m2 panic count = %f, want 0", v)
	}
}

// error chain

func TestObserveError(t *testing.T) {
	m := New()

	m.ObserveError("validation", "invalid_request", "")
	m.ObserveError("malformed_body", "malformed_request", "entity.parse.failed")
	m.ObserveError("malformed_body", "malformed_request", "entity.parse.failed")
	m.ObserveError("malformed_body", "malformed_request", "charset.unsupported")

	f := gatherMetric(t, m.reg, "api_errors_total")
	if f == nil || len(f.GetMetric()) != 2 {
		t.Fatalf("api_errors_total series = %v, want 2", f)
	}
	got := map[string]float64{}
	for _, s := range f.GetMetric() {
		for _, lp := range s.GetLabel() {
			if lp.GetName() == "kind" {
				got[lp.GetValue()] = s.GetCounter().GetValue()
			}
		}
	}
	if got["validation"] != 1 || got["malformed_body"] != 3 {
		t.Fatalf("api_errors_total by kind = %v", got)
	}

	mf := gatherMetric(t, m.reg, "api_malformed_body_total")
	if mf == nil || len(mf.GetMetric()) != 2 {
		t.Fatalf("api_malformed_body_total series = %v, want 2", mf)
	}
}

func TestFaultReports_IsRegistered(t *testing.T) {
	m := New()
	m.FaultReports().Inc()

	if v := counterValue(t, m.reg, "api_fault_reports_total"); v != 1 {
		t.Fatalf("api_fault_reports_total = %f, want 1", v)
	}
}

func TestIncCallbackMessage(t *testing.T) {
	m := New()
	m.IncCallbackMessage("sns", "Notification")

	if v := counterValue(t, m.reg, "callback_messages_total"); v != 1 {
		t.Fatalf("callback_messages_total = %f, want 1", v)
	}
}

// SetBuildInfoFromVersion

func TestSetBuildInfoFromVersion(t *testing.T) {
	m := New()

	dirty := true
	m.SetBuildInfoFromVersion("apiedge", "server", version.Info{
		Version:    "1.2.3",
		Commit:     "abc123",
		CommitDate: "2025-01-01",
		BuildID:    "build-42",
		BuildDate:  "2025-01-01T00:00:00Z",
		GoVersion:  "go1.24.0",
		VCSDirty:   &dirty,
	})

	f := gatherMetric(t, m.reg, "build_info")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatal("build_info should have exactly one series")
	}
	if v := f.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Fatalf("build_info value = %f, want 1", v)
	}

	labels := make(map[string]string)
	for _, lp := range f.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	for k, want := range map[string]string{
		"app":        "apiedge",
		"component":  "server",
		"version":    "1.2.3",
		"commit":     "abc123",
		"build_id":   "build-42",
		"go_version": "go1.24.0",
		"vcs_dirty":  "true",
	} {
		if got := labels[k]; got != want {
			t.Errorf("build_info label %q = %q, want %q", k, got, want)
		}
	}
}

func TestSetBuildInfoFromVersion_NilVCSDirty(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion("app", "comp", version.Info{Version: "dev"})

	for _, lp := range gatherMetric(t, m.reg, "build_info").GetMetric()[0].GetLabel() {
		if lp.GetName() == "vcs_dirty" && lp.GetValue() != "unknown" {
			t.Fatalf("vcs_dirty = %q, want unknown", lp.GetValue())
		}
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	for _, tc := range []struct {
		active bool
		want   float64
	}{{true, 1}, {false, 0}} {
		m.SetProfilingActive(tc.active)
		if v := gatherMetric(t, m.reg, "profiling_active").GetMetric()[0].GetGauge().GetValue(); v != tc.want {
			t.Fatalf("SetProfilingActive(%v) = %f, want %f", tc.active, v, tc.want)
		}
	}
}

// helpers

// gatherMetric collects metrics from the registry and finds one by name.
func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// counterValue returns the value of the first metric in a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	if len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0].GetCounter().GetValue()
}

// histogramCount returns the sample count of the first metric in a histogram family.
func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	if len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0].GetHistogram().GetSampleCount()
}
