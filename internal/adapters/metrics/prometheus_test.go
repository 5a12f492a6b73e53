package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jobrunner/archivesync/internal/ports/output"
)

var _ output.MetricsCollector = (*Collector)(nil)

func TestCollectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("test", reg)

	c.IncYearUploads(true)
	c.IncYearUploads(true)
	c.IncYearUploads(false)
	c.IncFileUploads("data", true)
	c.IncFileUploads("marker", false)
	c.AddMarkersPruned("local", 2)
	c.AddMarkersPruned("remote", 1)
	c.IncFailuresRecorded()
	c.SetStaleYears(3)

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"year success", c.yearUploads.WithLabelValues("success"), 2},
		{"year error", c.yearUploads.WithLabelValues("error"), 1},
		{"data upload", c.fileUploads.WithLabelValues("data", "success"), 1},
		{"marker failure", c.fileUploads.WithLabelValues("marker", "error"), 1},
		{"pruned local", c.markersPruned.WithLabelValues("local"), 2},
		{"pruned remote", c.markersPruned.WithLabelValues("remote"), 1},
		{"failures", c.failuresRecorded, 1},
		{"stale years", c.staleYears, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectorLastRun(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())
	at := time.Unix(1700000000, 0)

	c.SetLastRun(at, true)
	if got := testutil.ToFloat64(c.lastRunTimestamp); got != 1700000000 {
		t.Errorf("last run timestamp = %v", got)
	}
	if got := testutil.ToFloat64(c.lastRunSuccess); got != 1 {
		t.Errorf("last run success = %v, want 1", got)
	}

	c.SetLastRun(at, false)
	if got := testutil.ToFloat64(c.lastRunSuccess); got != 0 {
		t.Errorf("last run success = %v, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("archivesync", reg)
	c.IncYearUploads(true)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "archivesync_year_uploads_total") {
		t.Error("metrics output should contain year_uploads_total")
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	if got := testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/sync", "4xx")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestStatusToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{429, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		if got := statusToString(tt.code); got != tt.want {
			t.Errorf("statusToString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
