package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChaosMetrics holds the collectors for injection runs, validation and the
// ledger. All methods are safe on a nil receiver so callers can leave
// metrics unconfigured.
type ChaosMetrics struct {
	gatherer prometheus.Gatherer

	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	MessagesProcessed  prometheus.Counter
	ModeApplications   *prometheus.CounterVec
	Mutations          *prometheus.CounterVec
	ValidationsTotal   *prometheus.CounterVec
	ValidationChiSq    *prometheus.GaugeVec
	LedgerOperations   *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
	RateLimited        prometheus.Counter
}

// NewChaosMetrics registers the collectors on a fresh registry.
func NewChaosMetrics() *ChaosMetrics {
	reg := prometheus.NewRegistry()
	return NewChaosMetricsWith(reg, reg)
}

// NewChaosMetricsWith registers the collectors on reg and serves them from g.
func NewChaosMetricsWith(reg prometheus.Registerer, g prometheus.Gatherer) *ChaosMetrics {
	m := &ChaosMetrics{
		gatherer: g,
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_runs_total",
				Help: "Injection runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chaos_run_duration_seconds",
				Help:    "Wall time of injection runs",
				Buckets: prometheus.DefBuckets,
			},
		),
		MessagesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chaos_messages_processed_total",
				Help: "Messages fed through the injector",
			},
		),
		ModeApplications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_mode_applications_total",
				Help: "Chaos configurations applied, by mode and whether the probability gate skipped them",
			},
			[]string{"mode", "skipped"},
		),
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_mutations_total",
				Help: "Timeline entries recorded, by mode and action",
			},
			[]string{"mode", "action"},
		),
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_validations_total",
				Help: "Distribution validations, by mode and verdict",
			},
			[]string{"mode", "passed"},
		),
		ValidationChiSq: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chaos_validation_chi_square",
				Help: "Chi-square statistic of the latest validation per mode",
			},
			[]string{"mode"},
		),
		LedgerOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_ledger_operations_total",
				Help: "Ledger operations by kind and result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chaos_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chaos_http_rate_limited_total",
				Help: "HTTP requests rejected by the per-client rate limit",
			},
		),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.MessagesProcessed,
		m.ModeApplications,
		m.Mutations,
		m.ValidationsTotal,
		m.ValidationChiSq,
		m.LedgerOperations,
		m.HTTPRequestsTotal,
		m.HTTPRequestLatency,
		m.RateLimited,
	)
	return m
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *ChaosMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *ChaosMetrics) RunCompleted(duration time.Duration, messages int, err error) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome(err)).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.MessagesProcessed.Add(float64(messages))
}

func (m *ChaosMetrics) ModeApplied(mode string, skipped bool) {
	if m == nil {
		return
	}
	m.ModeApplications.WithLabelValues(mode, strconv.FormatBool(skipped)).Inc()
}

func (m *ChaosMetrics) Mutation(mode, action string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(mode, action).Inc()
}

func (m *ChaosMetrics) ValidationCompleted(mode string, chiSquare float64, passed bool) {
	if m == nil {
		return
	}
	m.ValidationsTotal.WithLabelValues(mode, strconv.FormatBool(passed)).Inc()
	m.ValidationChiSq.WithLabelValues(mode).Set(chiSquare)
}

func (m *ChaosMetrics) LedgerOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.LedgerOperations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *ChaosMetrics) ObserveRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *ChaosMetrics) RequestRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
