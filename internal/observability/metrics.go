package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rotatingbox"

// Exchange outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeOutstanding = "outstanding"
	OutcomeError       = "error"
)

// Frame outcomes
const (
	FrameRendered = "rendered"
	FrameFailed   = "failed"
	FrameSkipped  = "skipped"
)

// Metrics holds the collectors shared by the capture, messaging and frame
// packages. Each instance registers on its own Registerer so tests can count
// resources in isolation.
type Metrics struct {
	ChannelsOpen     prometheus.Gauge
	ContextsOpen     prometheus.Gauge
	Exchanges        *prometheus.CounterVec
	ExchangeDuration prometheus.Histogram
	FrameTicks       *prometheus.CounterVec
	CaptureFrames    prometheus.Counter
	CaptureDropped   prometheus.Counter
	CaptureActive    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChannelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "channels_open",
			Help:      "Request/reply sockets currently allocated.",
		}),
		ContextsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "contexts_open",
			Help:      "Messaging contexts currently alive.",
		}),
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messaging",
				Name:      "exchanges_total",
				Help:      "Request/reply exchanges by outcome.",
			},
			[]string{"outcome"},
		),
		ExchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "exchange_duration_seconds",
			Help:      "Time spent blocked in a request/reply exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		FrameTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "frame",
				Name:      "ticks_total",
				Help:      "Frame ticks by outcome.",
			},
			[]string{"outcome"},
		),
		CaptureFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_total",
			Help:      "Frames received from the capture device.",
		}),
		CaptureDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "dropped_total",
			Help:      "Device frames overwritten before the frame loop polled them.",
		}),
		CaptureActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "active",
			Help:      "1 when a live capture device is open, 0 when the placeholder is in use.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ChannelsOpen, m.ContextsOpen, m.Exchanges, m.ExchangeDuration,
			m.FrameTicks, m.CaptureFrames, m.CaptureDropped, m.CaptureActive,
		)
	}
	return m
}

// RecordExchange counts one exchange and, for completed round trips, its latency
func (m *Metrics) RecordExchange(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.ExchangeDuration.Observe(d.Seconds())
	}
}

// RecordFrame counts one frame tick
func (m *Metrics) RecordFrame(outcome string) {
	if m == nil {
		return
	}
	m.FrameTicks.WithLabelValues(outcome).Inc()
}
