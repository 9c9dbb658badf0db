package poller

import "github.com/prometheus/client_golang/prometheus"

// Metrics 记录轮询次数与 topic 结算结果。
type Metrics struct {
	pollTotal    *prometheus.CounterVec
	settledTotal *prometheus.CounterVec
}

// NewMetrics 构造 Metrics，reg 为空则注册到默认注册器。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect",
			Subsystem: "topic",
			Name:      "polls_total",
			Help:      "Topic polls issued against the relay",
		}, []string{"result"}),
		settledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect",
			Subsystem: "topic",
			Name:      "settled_total",
			Help:      "Topics settled by kind, outcome and delivery channel",
		}, []string{"kind", "outcome", "channel"}),
	}
	reg.MustRegister(m.pollTotal, m.settledTotal)
	return m
}

func (m *Metrics) incPoll(result string) {
	if m == nil {
		return
	}
	m.pollTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incSettled(kind, outcome, channel string) {
	if m == nil {
		return
	}
	m.settledTotal.WithLabelValues(labelOrUnknown(kind), outcome, channel).Inc()
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
