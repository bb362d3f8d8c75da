package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	xlogger "BriefMaker/pkg/logger"
)

var ErrWindowPanic = errors.New("window processing panicked")

// BriefPipeline dispatches one second of ticks and drives the window
// boundary: quote guesses are solidified on the second second of every
// window and the window is finalized on its last second.
type BriefPipeline struct {
	dispatcher *TickDispatcher
	finalizer  *WindowFinalizer
	width      int
	metrics    domrepo.Metrics
	logger     *xlogger.Logger

	dispatched atomic.Uint64
}

func NewBriefPipeline(
	dispatcher *TickDispatcher,
	finalizer *WindowFinalizer,
	resolution time.Duration,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
) *BriefPipeline {
	return &BriefPipeline{
		dispatcher: dispatcher,
		finalizer:  finalizer,
		width:      max(int(resolution/time.Second), 1),
		metrics:    metrics,
		logger:     logger,
	}
}

// ProcessSecond applies batch as the ticks of second at. A panic inside is
// recovered and reported as ErrWindowPanic.
func (p *BriefPipeline) ProcessSecond(ctx context.Context, at time.Time, batch models.TickBatch, bulk bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordError("window_panic")
			p.logger.Error("recovered from panic while processing second",
				xlogger.Time("at", at),
				xlogger.Any("panic", r),
			)
			err = fmt.Errorf("%w: %v", ErrWindowPanic, r)
		}
	}()

	p.dispatcher.ApplyBatch(batch)

	sec := at.Second() % p.width
	if p.width > 1 && sec == 1 {
		p.dispatcher.Solidify()
	}
	if sec == p.width-1 {
		p.finalizer.Finalize(ctx, at, bulk)
	}
	p.dispatched.Add(1)
	return nil
}

// FlushPending forwards to the finalizer.
func (p *BriefPipeline) FlushPending(ctx context.Context) error {
	return p.finalizer.FlushPending(ctx)
}

// Dispatched counts processed seconds.
func (p *BriefPipeline) Dispatched() uint64 {
	return p.dispatched.Load()
}
