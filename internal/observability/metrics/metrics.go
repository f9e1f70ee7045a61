package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the debounce pipeline.
type PipelineMetrics struct {
	inboundTotal    *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadwire",
			Subsystem: "pipeline",
			Name:      "inbound_total",
			Help:      "Total inbound messages accepted by the scheduler",
		}, []string{"channel", "status"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadwire",
			Subsystem: "pipeline",
			Name:      "dispatch_total",
			Help:      "Total conversation dispatches by outcome",
		}, []string{"status"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadwire",
			Subsystem: "pipeline",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency of a full conversation dispatch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadwire",
			Subsystem: "pipeline",
			Name:      "events_published_total",
			Help:      "Total domain events handed to the publisher",
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.dispatchTotal, m.dispatchLatency, m.eventsPublished)
	return m
}

func (m *PipelineMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *PipelineMetrics) ObserveDispatch(status string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(status).Inc()
	m.dispatchLatency.WithLabelValues(status).Observe(seconds)
}

func (m *PipelineMetrics) ObserveEventPublished(channel string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(channel).Inc()
}
