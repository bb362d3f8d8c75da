package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	xlogger "BriefMaker/pkg/logger"
)

var metrics = struct {
	Retries  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Delays   *prometheus.HistogramVec
}{
	Retries: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "briefmaker", Subsystem: "backoff", Name: "retries_total",
		Help: "Number of back-off retry attempts",
	}, []string{"op"}),
	Failures: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "briefmaker", Subsystem: "backoff", Name: "failures_total",
		Help: "Number of operations that gave up after retries",
	}, []string{"op"}),
	Delays: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "briefmaker", Subsystem: "backoff", Name: "retry_delay_seconds",
		Help:    "Histogram of retry delays (seconds)",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"}),
}

// Config contains tunables for exponential back-off. Zero values fall back
// to defaults.
type Config struct {
	InitialInterval time.Duration `yaml:"initial_interval" default:"500ms"`
	Multiplier      float64       `yaml:"multiplier" default:"2"`
	MaxInterval     time.Duration `yaml:"max_interval" default:"10s"`
	// MaxElapsedTime bounds all retries together. Zero retries until ctx ends.
	MaxElapsedTime    time.Duration `yaml:"max_elapsed_time" default:"1m"`
	PerAttemptTimeout time.Duration `yaml:"per_attempt_timeout"`
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
}

// ErrMaxRetries is returned when fn still fails after the last attempt.
type ErrMaxRetries struct {
	Err      error
	Attempts int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: %d attempt(s) failed: %v", e.Attempts, e.Err)
}

func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error { return backoff.Permanent(err) }

// Execute runs fn with exponential back-off, logging each retry under op.
func Execute(ctx context.Context, op string, cfg Config, log *xlogger.Logger, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime

	attempts := 0
	operation := func() error {
		attempts++
		if cfg.PerAttemptTimeout > 0 {
			actx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
			defer cancel()
			return fn(actx)
		}
		return fn(ctx)
	}
	notify := func(err error, delay time.Duration) {
		metrics.Retries.WithLabelValues(op).Inc()
		metrics.Delays.WithLabelValues(op).Observe(delay.Seconds())
		log.Warn("back-off retry",
			xlogger.String("op", op),
			xlogger.Int("attempt", attempts),
			xlogger.Duration("delay_ms", delay),
			xlogger.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		metrics.Failures.WithLabelValues(op).Inc()
		return &ErrMaxRetries{Err: err, Attempts: attempts}
	}
	return nil
}
