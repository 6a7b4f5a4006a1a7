package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	resultSent     = "sent"
	resultFailed   = "failed"
	resultSkipped  = "skipped"
	resultDelayed  = "delayed"
	resultCanceled = "canceled"
)

// Metrics are the Prometheus collectors fed by a Dispatcher.
type Metrics struct {
	messages   *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	duration   prometheus.Histogram
	inflight   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midipreset_messages_total",
				Help: "Messages processed by the dispatcher, by kind and result",
			},
			[]string{"kind", "result"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midipreset_dispatches_total",
				Help: "Dispatch calls, by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "midipreset_dispatch_duration_seconds",
				Help:    "Wall time of a whole dispatch call, delays included",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "midipreset_dispatches_inflight",
				Help: "Dispatch calls currently running or waiting for their device",
			},
		),
	}
	reg.MustRegister(m.messages, m.dispatches, m.duration, m.inflight)
	return m
}

func (m *Metrics) message(kind, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) begin() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) end(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.dispatches.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}
