package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics 记录 relay 的投递与轮询情况。
type Metrics struct {
	stored    prometheus.Gauge
	postTotal *prometheus.CounterVec
	pollTotal *prometheus.CounterVec
}

// NewMetrics 构造 Metrics，reg 为空则注册到默认注册器。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "connect",
			Subsystem: "relay",
			Name:      "topics_stored",
			Help:      "Number of answered topics held by the relay",
		}),
		postTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect",
			Subsystem: "relay",
			Name:      "posts_total",
			Help:      "Responses posted to topics",
		}, []string{"result"}),
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect",
			Subsystem: "relay",
			Name:      "polls_total",
			Help:      "Topic polls served",
		}, []string{"result"}),
	}
	reg.MustRegister(m.stored, m.postTotal, m.pollTotal)
	return m
}

func (m *Metrics) setStored(n int) {
	if m == nil {
		return
	}
	m.stored.Set(float64(n))
}

func (m *Metrics) incPost(result string) {
	if m == nil {
		return
	}
	m.postTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incPoll(result string) {
	if m == nil {
		return
	}
	m.pollTotal.WithLabelValues(result).Inc()
}
