package connect

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 记录请求数量、耗时与 UI 收起失败。
type Metrics struct {
	requestTotal  *prometheus.CounterVec
	inFlight      *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	verifyTotal   *prometheus.CounterVec
	closeFailures prometheus.Counter
}

// NewMetrics 构造 Metrics，reg 为空则注册到默认注册器。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "requests_total",
			Help:      "Out-of-band requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "connect",
			Name:      "requests_in_flight",
			Help:      "Requests waiting for their topic to settle",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "connect",
			Name:      "request_duration_seconds",
			Help:      "Time from topic creation to settlement",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "verifications_total",
			Help:      "Credential verifications by result",
		}, []string{"result"}),
		closeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "display_close_failures_total",
			Help:      "Close handler invocations that returned an error",
		}),
	}
	reg.MustRegister(m.requestTotal, m.inFlight, m.latency, m.verifyTotal, m.closeFailures)
	return m
}

func (m *Metrics) begin(kind string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.inFlight.WithLabelValues(kind).Inc()
	return func(outcome string) {
		m.inFlight.WithLabelValues(kind).Dec()
		m.latency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		m.requestTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) incRejected(kind, outcome string) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) incVerify(result string) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incCloseFailure() {
	if m == nil {
		return
	}
	m.closeFailures.Inc()
}
