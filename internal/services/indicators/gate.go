package indicators

import (
	"context"
	"time"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/domain/service"
	"BriefMaker/internal/service/ratelimit"
	xlogger "BriefMaker/pkg/logger"
)

// Gate keeps the rolling bar history per symbol and calls the engine once
// enough of it exists. A nil result means every indicator slot is zero.
type Gate struct {
	engine     service.IndicatorEngine
	minHistory int
	maxHistory int
	timeout    time.Duration
	metrics    domrepo.Metrics
	logger     *xlogger.Logger
	limiter    *ratelimit.Limiter

	history [][]models.Bar
}

func NewGate(
	engine service.IndicatorEngine,
	minHistory, maxHistory int,
	timeout time.Duration,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	limiter *ratelimit.Limiter,
) *Gate {
	if minHistory < 1 {
		minHistory = 1
	}
	if maxHistory < minHistory {
		maxHistory = minHistory
	}
	return &Gate{
		engine:     engine,
		minHistory: minHistory,
		maxHistory: maxHistory,
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
		limiter:    limiter,
	}
}

// Next appends one window of bars and returns the vectors for it. It is
// called from the finalizer goroutine only.
func (g *Gate) Next(ctx context.Context, bars []models.Bar) [][models.IndicatorCount]float32 {
	if len(g.history) != len(bars) {
		g.history = make([][]models.Bar, len(bars))
	}
	for i, b := range bars {
		h := append(g.history[i], b)
		if len(h) > g.maxHistory {
			h = h[len(h)-g.maxHistory:]
		}
		g.history[i] = h
	}
	if len(bars) == 0 || len(g.history[0]) < g.minHistory {
		return nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	started := time.Now()
	vectors, err := g.engine.Compute(ctx, g.history)
	g.metrics.RecordLatency("indicators_seconds", time.Since(started).Seconds())
	if err != nil {
		g.metrics.RecordError("indicators")
		if g.limiter.Allow("indicators") {
			g.logger.Warn("indicator engine failed, using zeros", xlogger.Error(err))
		}
		return nil
	}
	return vectors
}

// Len reports how many windows of history are held per symbol.
func (g *Gate) Len() int {
	if len(g.history) == 0 {
		return 0
	}
	return len(g.history[0])
}
