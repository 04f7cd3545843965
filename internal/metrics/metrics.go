// Package metrics turns call lifecycle events into Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sebas/softphone/internal/events"
)

const namespace = "softphone"

// Publisher is an events.Publisher that records metrics instead of
// forwarding events.
type Publisher struct {
	registry *prometheus.Registry

	callsStarted  prometheus.Counter
	callsAnswered prometheus.Counter
	callsEnded    *prometheus.CounterVec
	callActive    prometheus.Gauge
	recordings    prometheus.Counter
	callDuration  prometheus.Histogram
	setupDuration prometheus.Histogram
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher with its own registry, including the Go
// and process collectors.
func NewPublisher() *Publisher {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Publisher{
		registry: reg,
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_started_total",
			Help:      "Calls placed.",
		}),
		callsAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_answered_total",
			Help:      "Calls that reached the connected state.",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Calls ended, by reason.",
		}, []string{"reason"}),
		callActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_active",
			Help:      "1 while a call is in progress.",
		}),
		recordings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Recordings started.",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Talk time of answered calls.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		setupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_setup_seconds",
			Help:      "Time from dialing to answer.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		p.callsStarted,
		p.callsAnswered,
		p.callsEnded,
		p.callActive,
		p.recordings,
		p.callDuration,
		p.setupDuration,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Publisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *Publisher) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	p.observe(event)
	return nil
}

func (p *Publisher) PublishAsync(event events.Event) {
	p.observe(event)
}

func (p *Publisher) observe(event events.Event) {
	switch e := event.(type) {
	case *events.CallDialingEvent:
		p.callsStarted.Inc()
		p.callActive.Set(1)
	case *events.CallAnsweredEvent:
		p.callsAnswered.Inc()
		p.setupDuration.Observe(float64(e.SetupDurationMs) / 1000)
	case *events.CallEndedEvent:
		p.callsEnded.WithLabelValues(string(e.EndReason)).Inc()
		p.callActive.Set(0)
		if e.TalkDurationMs > 0 {
			p.callDuration.Observe(float64(e.TalkDurationMs) / 1000)
		}
	case *events.RecordingEvent:
		if e.Type() == events.RecordingStarted {
			p.recordings.Inc()
		}
	}
}

func (p *Publisher) Flush(ctx context.Context) error { return nil }
func (p *Publisher) Close() error                    { return nil }
