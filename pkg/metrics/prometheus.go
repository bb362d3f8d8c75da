package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks          *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	windows        *prometheus.CounterVec
	gapSeconds     prometheus.Counter
	violations     *prometheus.CounterVec
	replayProgress prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on /metrics.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "briefmaker_ticks_applied_total",
				Help: "Ticks applied to the window store, by kind",
			},
			[]string{"kind"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "briefmaker_ticks_dropped_total",
				Help: "Ticks or batches dropped before dispatch, by reason",
			},
			[]string{"reason"},
		),
		windows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "briefmaker_windows_total",
				Help: "Finalized windows, by outcome",
			},
			[]string{"outcome"},
		),
		gapSeconds: f.NewCounter(
			prometheus.CounterOpts{
				Name: "briefmaker_gap_seconds_filled_total",
				Help: "Stream seconds filled by repeating the previous batch",
			},
		),
		violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "briefmaker_sequence_violations_total",
				Help: "Out of sequence events and window ids, by kind",
			},
			[]string{"kind"},
		),
		replayProgress: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "briefmaker_replay_last_submitted_seconds",
				Help: "Unix time of the last second submitted during replay",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "briefmaker_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "briefmaker_last_price",
				Help: "Last committed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "briefmaker_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTicks(kind string, n int) {
	r.ticks.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordDropped(reason string, n int) {
	r.dropped.WithLabelValues(reason).Add(float64(n))
}

// RecordWindow counts one finalized window by its outcome label.
func (r *Recorder) RecordWindow(outcome string) {
	r.windows.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordGapSeconds(n int) {
	r.gapSeconds.Add(float64(n))
}

func (r *Recorder) RecordSequenceViolation(kind string) {
	r.violations.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordReplayProgress(at time.Time) {
	r.replayProgress.Set(float64(at.Unix()))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
