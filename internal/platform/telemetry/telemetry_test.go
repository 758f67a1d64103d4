package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthdesk/triage/internal/platform/db"
)

type stubProber struct{ stats db.PoolStats }

func (s stubProber) Ping(context.Context) error {
	return nil
}

func (s stubProber) Stats() db.PoolStats {
	return s.stats
}

func TestHistogram_Observe(t *testing.T) {
	h := newHistogram([]float64{1, 5, 10})
	for _, v := range []float64{0.5, 1, 3, 7, 20} {
		h.Observe(v)
	}

	if h.Count() != 5 {
		t.Errorf("expected count 5, got %d", h.Count())
	}
	if h.Sum() != 31.5 {
		t.Errorf("expected sum 31.5, got %g", h.Sum())
	}
	want := []int64{2, 3, 4}
	for i, got := range h.cumulativeBuckets() {
		if got != want[i] {
			t.Errorf("bucket %d: expected %d, got %d", i, want[i], got)
		}
	}
}

func TestHistogram_ConcurrentObserve(t *testing.T) {
	h := newHistogram(durationBuckets)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Observe(0.01)
		}()
	}
	wg.Wait()
	if h.Count() != 100 {
		t.Errorf("expected 100 observations, got %d", h.Count())
	}
}

func TestMetrics_ResponseScored(t *testing.T) {
	m := New(nil)
	m.ResponseScored("High", 2)
	m.ResponseScored("High", 0)
	m.ResponseScored("", 1)
	m.AppointmentRouted("physician")

	if m.ScoredCount("High") != 2 {
		t.Errorf("expected 2 High, got %d", m.ScoredCount("High"))
	}
	if m.ScoredCount(Unclassified) != 1 {
		t.Errorf("expected an unclassified count, got %d", m.ScoredCount(Unclassified))
	}
	if m.RoutedCount("physician") != 1 || m.RoutedCount("professional") != 0 {
		t.Error("unexpected routed counts")
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := New(nil)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/forms/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/fail", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "taken") })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	for _, path := range []string{"/forms/1", "/forms/2", "/fail", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	tests := []struct {
		route, status string
		want          int64
	}{
		{"/forms/:id", "204", 2},
		{"/fail", "409", 1},
		{"/boom", "500", 1},
	}
	for _, tt := range tests {
		if got := m.RequestCount(http.MethodGet, tt.route, tt.status); got != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.route, tt.status, tt.want, got)
		}
	}
	if m.active != 0 {
		t.Errorf("expected no active requests, got %d", m.active)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(stubProber{stats: db.PoolStats{TotalConns: 4, IdleConns: 3, AcquiredConns: 1}})
	m.ResponseScored("Severe", 1)
	m.ResponseScored("High", 0)
	m.AppointmentRouted("professional")
	m.requestHistogram(LabelsKey("POST", "/api/v1/forms/:id/responses", "201")).Observe(0.02)

	e := echo.New()
	e.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`triage_responses_scored_total{classification="High"} 1`,
		`triage_responses_scored_total{classification="Severe"} 1`,
		`triage_appointments_routed_total{caregiver_kind="professional"} 1`,
		`triage_unmatched_answers_total 1`,
		`http_server_request_duration_seconds_bucket{method="POST",route="/api/v1/forms/:id/responses",status_code="201",le="0.025"} 1`,
		`http_server_request_duration_seconds_count{method="POST",route="/api/v1/forms/:id/responses",status_code="201"} 1`,
		`db_pool_idle_connections 3`,
		`# TYPE http_server_active_requests gauge`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition:\n%s", want, body)
		}
	}

	if strings.Index(body, `classification="High"`) > strings.Index(body, `classification="Severe"`) {
		t.Error("expected series in sorted order")
	}
}

func TestMetrics_HandlerWithoutPool(t *testing.T) {
	m := New(nil)
	var b strings.Builder
	m.write(&b)
	if strings.Contains(b.String(), "db_pool") {
		t.Error("pool gauges need a prober")
	}
}
