// Package telemetry records HTTP and triage metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthdesk/triage/internal/platform/db"
)

// Request duration bucket boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

// histogram keeps non-cumulative bucket counts; export makes them
// cumulative.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, bucketCounts: make([]int64, len(boundaries))}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&h.sum, old, next) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

// counterVec is a counter keyed by its label values joined with "|".
type counterVec struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterVec() *counterVec { return &counterVec{items: make(map[string]*int64)} }

func (v *counterVec) add(key string, n int64) {
	v.mu.RLock()
	p, ok := v.items[key]
	v.mu.RUnlock()
	if !ok {
		v.mu.Lock()
		if p, ok = v.items[key]; !ok {
			p = new(int64)
			v.items[key] = p
		}
		v.mu.Unlock()
	}
	atomic.AddInt64(p, n)
}

func (v *counterVec) get(key string) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if p, ok := v.items[key]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

func (v *counterVec) sortedKeys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.items))
	for k := range v.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LabelsKey builds the key of a request duration series.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

// Metrics holds every series the server exports.
type Metrics struct {
	histMu   sync.RWMutex
	requests map[string]*histogram // LabelsKey -> duration
	active   int64

	scored    *counterVec // classification
	routed    *counterVec // caregiver kind
	unmatched int64

	pool db.Prober
}

// New returns an empty registry. pool may be nil, in which case the pool
// gauges are omitted.
func New(pool db.Prober) *Metrics {
	return &Metrics{
		requests: make(map[string]*histogram),
		scored:   newCounterVec(),
		routed:   newCounterVec(),
		pool:     pool,
	}
}

// Unclassified labels scores that matched no rule.
const Unclassified = "none"

// ResponseScored counts a scored response by classification and the
// answers in it that contributed no points.
func (m *Metrics) ResponseScored(classification string, unmatchedAnswers int) {
	if classification == "" {
		classification = Unclassified
	}
	m.scored.add(classification, 1)
	atomic.AddInt64(&m.unmatched, int64(unmatchedAnswers))
}

// AppointmentRouted counts an appointment created or moved by routing.
func (m *Metrics) AppointmentRouted(caregiverKind string) {
	m.routed.add(caregiverKind, 1)
}

func (m *Metrics) ScoredCount(classification string) int64 { return m.scored.get(classification) }

func (m *Metrics) RoutedCount(caregiverKind string) int64 { return m.routed.get(caregiverKind) }

func (m *Metrics) requestHistogram(key string) *histogram {
	m.histMu.RLock()
	h, ok := m.requests[key]
	m.histMu.RUnlock()
	if ok {
		return h
	}
	m.histMu.Lock()
	defer m.histMu.Unlock()
	if h, ok = m.requests[key]; !ok {
		h = newHistogram(durationBuckets)
		m.requests[key] = h
	}
	return h
}

// RequestCount returns how many requests a series has observed.
func (m *Metrics) RequestCount(method, route, status string) int64 {
	m.histMu.RLock()
	defer m.histMu.RUnlock()
	if h, ok := m.requests[LabelsKey(method, route, status)]; ok {
		return h.Count()
	}
	return 0
}

// Middleware observes request duration by method, route and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			atomic.AddInt64(&m.active, -1)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := LabelsKey(c.Request().Method, route, strconv.Itoa(c.Response().Status))
			m.requestHistogram(key).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the exposition text.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		m.write(&b)
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func (m *Metrics) write(b *strings.Builder) {
	const duration = "http_server_request_duration_seconds"
	fmt.Fprintf(b, "# HELP %s Duration of HTTP requests in seconds.\n", duration)
	fmt.Fprintf(b, "# TYPE %s histogram\n", duration)
	m.histMu.RLock()
	keys := make([]string, 0, len(m.requests))
	for k := range m.requests {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts := strings.SplitN(k, "|", 3)
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(b, duration, labels, m.requests[k])
	}
	m.histMu.RUnlock()
	b.WriteByte('\n')

	writeGauge(b, "http_server_active_requests", "Number of in-flight HTTP requests.", atomic.LoadInt64(&m.active))

	writeCounterVec(b, "triage_responses_scored_total", "Responses scored, by classification.", "classification", m.scored)
	writeCounterVec(b, "triage_appointments_routed_total", "Appointments created or moved by routing, by caregiver kind.", "caregiver_kind", m.routed)

	fmt.Fprintf(b, "# HELP triage_unmatched_answers_total Answers that matched no option of their question.\n")
	fmt.Fprintf(b, "# TYPE triage_unmatched_answers_total counter\n")
	fmt.Fprintf(b, "triage_unmatched_answers_total %d\n\n", atomic.LoadInt64(&m.unmatched))

	if m.pool != nil {
		s := m.pool.Stats()
		writeGauge(b, "db_pool_total_connections", "Open database pool connections.", int64(s.TotalConns))
		writeGauge(b, "db_pool_idle_connections", "Idle database pool connections.", int64(s.IdleConns))
		writeGauge(b, "db_pool_acquired_connections", "Checked-out database pool connections.", int64(s.AcquiredConns))
	}
}

func writeGauge(b *strings.Builder, name, help string, v int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
}

func writeCounterVec(b *strings.Builder, name, help, label string, v *counterVec) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	for _, k := range v.sortedKeys() {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", name, label, k, v.get(k))
	}
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count())
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.Count())
}
