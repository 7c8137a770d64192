package metrics

import "github.com/prometheus/client_golang/prometheus"

// BriefingMetrics exposes counters/histograms for the answer pipeline.
type BriefingMetrics struct {
	inboundTotal      *prometheus.CounterVec
	ledgerTotal       *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	processingLatency *prometheus.HistogramVec
	startsTotal       *prometheus.CounterVec
	completedTotal    prometheus.Counter
	dispatchTotal     *prometheus.CounterVec
}

func NewBriefingMetrics(reg prometheus.Registerer) *BriefingMetrics {
	m := &BriefingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "processor",
			Name:      "inbound_total",
			Help:      "Inbound answers processed, by outcome code",
		}, []string{"code"}),
		ledgerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "processor",
			Name:      "ledger_total",
			Help:      "Idempotency ledger lookups and writes",
		}, []string{"result"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "processor",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		processingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "processor",
			Name:      "latency_seconds",
			Help:      "Latency of inbound answer processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code"}),
		startsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "lifecycle",
			Name:      "starts_total",
			Help:      "Briefing start requests, by result",
		}, []string{"result"}),
		completedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "lifecycle",
			Name:      "completed_total",
			Help:      "Briefings that reached COMPLETED",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "dispatch",
			Name:      "jobs_total",
			Help:      "Inbound dispatch jobs, by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.ledgerTotal, m.outboundTotal, m.processingLatency, m.startsTotal, m.completedTotal, m.dispatchTotal)
	return m
}

func (m *BriefingMetrics) ObserveInbound(code string, seconds float64) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(code).Inc()
	m.processingLatency.WithLabelValues(code).Observe(seconds)
}

// ObserveLedger records "hit", "miss", "recovered" or "conflict".
func (m *BriefingMetrics) ObserveLedger(result string) {
	if m == nil {
		return
	}
	m.ledgerTotal.WithLabelValues(result).Inc()
}

func (m *BriefingMetrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BriefingMetrics) ObserveStart(resumed bool) {
	if m == nil {
		return
	}
	result := "created"
	if resumed {
		result = "resumed"
	}
	m.startsTotal.WithLabelValues(result).Inc()
}

func (m *BriefingMetrics) ObserveCompleted() {
	if m == nil {
		return
	}
	m.completedTotal.Inc()
}

// ObserveDispatch records "ok", "retry", "dropped" or "failed".
func (m *BriefingMetrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
}
