package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "abc123"}})
	observability.Init(p.Registerer(), true)
	observability.ExposeBuildInfo("test")

	observability.ObserveUpstreamLatency("pvgis", 0.120)
	observability.ObserveCacheOp("get", nil, 0.002)
	observability.ObserveCacheLookup("memory", false)
	observability.ObserveCacheLookup("store", true)
	observability.ObserveArtifactBytes(1 << 20)
	observability.IncGridEvent("dropped")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`upstream_latency_seconds_bucket{upstream="pvgis"`,
		`cache_operation_duration_seconds_count{op="get",result="ok"} `,
		`grid_artifact_bytes_count `,
		`grid_events_total{outcome="dropped"} `,
		`go_goroutines `,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "cache_results_total", `tier="memory"`, `outcome="miss"`)
	assertHasMetricLine(t, body, "cache_results_total", `tier="store"`, `outcome="hit"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`, `revision="abc123"`)
	assertHasMetricLine(t, body, "pvgrid_build_info", `version="test"`)
}

func TestInit_DefaultsVersion(t *testing.T) {
	p := Init(Config{})
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assertHasMetricLine(t, rr.Body.String(), "app_build_info", `version="dev"`)
}
