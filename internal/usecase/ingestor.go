package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/pkg/backoff"
	xlogger "BriefMaker/pkg/logger"
)

var (
	// ErrSequenceViolation marks an event that is older than or equal to the
	// last submitted second.
	ErrSequenceViolation = errors.New("tick sequence violation")
	// ErrGapUnfilled is returned when a live event is still ahead of the
	// expected second after catch-up.
	ErrGapUnfilled = errors.New("gap could not be filled")

	errGapAhead = errors.New("event ahead of expected second")
)

// SecondProcessor consumes one contiguous second of ticks.
type SecondProcessor interface {
	ProcessSecond(ctx context.Context, at time.Time, batch models.TickBatch, bulk bool) error
	FlushPending(ctx context.Context) error
}

// IngestorConfig tunes replay and gap handling.
type IngestorConfig struct {
	PageSize int
	LargeGap time.Duration
	Retry    backoff.Config
}

// GapRecoveryIngestor enforces one event per second in front of the
// pipeline. Missing seconds inside stream hours are filled by repeating the
// previous batch; missing seconds outside jump to the next stream start.
type GapRecoveryIngestor struct {
	proc    SecondProcessor
	source  domrepo.MomentSource
	session models.Session
	layout  models.Layout
	cfg     IngestorConfig
	metrics domrepo.Metrics
	logger  *xlogger.Logger
	limiter *ratelimit.Limiter

	mu   sync.Mutex
	last time.Time // zero until the first event
	prev models.TickBatch

	replayMu   sync.Mutex
	suspended  atomic.Bool
	replaying  atomic.Bool
	gapsFilled atomic.Uint64
}

func NewGapRecoveryIngestor(
	proc SecondProcessor,
	source domrepo.MomentSource,
	session models.Session,
	layout models.Layout,
	cfg IngestorConfig,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	limiter *ratelimit.Limiter,
) *GapRecoveryIngestor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 3600
	}
	if cfg.LargeGap <= 0 {
		cfg.LargeGap = time.Hour
	}
	return &GapRecoveryIngestor{
		proc:    proc,
		source:  source,
		session: session,
		layout:  layout,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		limiter: limiter,
	}
}

// SetLastSubmitted seeds the cadence, typically from the brief used to seed
// the window store.
func (g *GapRecoveryIngestor) SetLastSubmitted(t time.Time) {
	g.mu.Lock()
	g.last = t.Truncate(time.Second)
	g.mu.Unlock()
}

func (g *GapRecoveryIngestor) LastSubmitted() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Suspend makes Submit drop live events, used while startup replay runs.
func (g *GapRecoveryIngestor) Suspend() { g.suspended.Store(true) }

func (g *GapRecoveryIngestor) Resume() { g.suspended.Store(false) }

func (g *GapRecoveryIngestor) Replaying() bool { return g.replaying.Load() }

func (g *GapRecoveryIngestor) GapsFilled() uint64 { return g.gapsFilled.Load() }

// Submit ingests one live tick batch. A forward gap triggers a catch-up
// replay from the moment source before the event is retried once.
func (g *GapRecoveryIngestor) Submit(ctx context.Context, raw []byte) error {
	if g.suspended.Load() {
		g.metrics.RecordDropped("suspended", 1)
		return nil
	}
	batch, err := models.ParseTickBatch(raw, g.layout)
	if err != nil {
		g.metrics.RecordDropped("malformed", 1)
		return err
	}
	if batch.Trailing > 0 && g.limiter.Allow("batch_trailing") {
		g.logger.Error("tick batch has a partial trailing record",
			xlogger.Int("trailing_bytes", batch.Trailing),
			xlogger.Int("length", len(raw)),
		)
	}

	if err = g.ingestLocked(ctx, batch.Time, batch, false); !errors.Is(err, errGapAhead) {
		return err
	}

	if _, rerr := g.Replay(ctx); rerr != nil {
		g.logger.Error("catch-up replay failed", xlogger.Error(rerr))
	}
	if err = g.ingestLocked(ctx, batch.Time, batch, false); errors.Is(err, errGapAhead) {
		g.metrics.RecordSequenceViolation("gap_unfilled")
		return fmt.Errorf("%w: event at %s, last submitted %s",
			ErrGapUnfilled, batch.Time.Format(time.RFC3339), g.LastSubmitted().Format(time.RFC3339))
	}
	return err
}

// Replay feeds stored moments after the last submitted second through the
// pipeline in bulk mode, one page at a time, flushing buffered briefs after
// every page. It stops at the end of the source or when ctx is done.
func (g *GapRecoveryIngestor) Replay(ctx context.Context) (int, error) {
	g.replayMu.Lock()
	defer g.replayMu.Unlock()
	g.replaying.Store(true)
	defer g.replaying.Store(false)

	total := 0
	for {
		from := g.LastSubmitted()
		if !from.IsZero() {
			from = from.Add(time.Second)
		}

		var page []models.StreamMoment
		err := backoff.Execute(ctx, "moments_since", g.cfg.Retry, g.logger, func(ctx context.Context) error {
			var err error
			page, err = g.source.MomentsSince(ctx, from, g.cfg.PageSize)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("load moments since %s: %w", from.Format(time.RFC3339), err)
		}
		if len(page) == 0 {
			return total, nil
		}

		before := g.LastSubmitted()
		for _, m := range page {
			if err := ctx.Err(); err != nil {
				g.flush(ctx)
				return total, err
			}
			batch, err := models.ParseTickBatch(m.Data, g.layout)
			if err != nil {
				g.metrics.RecordDropped("malformed", 1)
				continue
			}
			if err := g.ingestLocked(ctx, m.Time, batch, true); err == nil {
				total++
			}
		}
		g.flush(ctx)

		after := g.LastSubmitted()
		g.metrics.RecordReplayProgress(after)
		g.logger.Info("replayed page",
			xlogger.Int("moments", len(page)),
			xlogger.Time("last_submitted", after),
		)
		if !after.After(before) || len(page) < g.cfg.PageSize {
			return total, nil
		}
	}
}

func (g *GapRecoveryIngestor) flush(ctx context.Context) {
	if err := g.proc.FlushPending(ctx); err != nil {
		g.logger.Error("failed to submit pending briefs", xlogger.Error(err))
	}
}

func (g *GapRecoveryIngestor) ingestLocked(ctx context.Context, at time.Time, batch models.TickBatch, bulk bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ingest(ctx, at, batch, bulk)
}

// ingest applies the cadence rules to one event. Called with g.mu held.
func (g *GapRecoveryIngestor) ingest(ctx context.Context, at time.Time, batch models.TickBatch, bulk bool) error {
	at = at.Truncate(time.Second)

	if bulk && !g.session.IsStreamTime(at) {
		if at.After(g.last) {
			g.last = at
		}
		return nil
	}

	if g.last.IsZero() {
		if !bulk {
			// cold start: seed the cadence from the first live event
			g.last, g.prev = at, batch
			g.logger.Info("seeded cadence from first live event", xlogger.Time("at", at))
			return nil
		}
		g.dispatch(ctx, at, batch, bulk)
		return nil
	}

	expected := g.last.Add(time.Second)
	switch {
	case at.Equal(expected):
	case at.Before(g.last):
		g.violation("past", at)
		return fmt.Errorf("%w: %s is before %s", ErrSequenceViolation, at.Format(time.RFC3339), g.last.Format(time.RFC3339))
	case at.Equal(g.last):
		g.violation("duplicate", at)
		return fmt.Errorf("%w: duplicate %s", ErrSequenceViolation, at.Format(time.RFC3339))
	default:
		if !bulk {
			return errGapAhead
		}
		g.fillGap(ctx, at)
	}
	g.dispatch(ctx, at, batch, bulk)
	return nil
}

// fillGap advances g.last to the second before at.
func (g *GapRecoveryIngestor) fillGap(ctx context.Context, at time.Time) {
	gap := at.Sub(g.last) - time.Second
	fields := []xlogger.Field{
		xlogger.Time("from", g.last.Add(time.Second)),
		xlogger.Time("to", at.Add(-time.Second)),
		xlogger.Int64("seconds", int64(gap/time.Second)),
	}
	if gap > g.cfg.LargeGap {
		g.logger.Warn("large gap in stream, filling", fields...)
	} else {
		g.logger.Info("gap in stream, filling", fields...)
	}

	filled := 0
	for next := g.last.Add(time.Second); next.Before(at); next = g.last.Add(time.Second) {
		if g.session.IsStreamTime(next) {
			g.dispatch(ctx, next, g.prev, true)
			filled++
			continue
		}
		jump := g.session.NextStreamStart(next).Add(-time.Second)
		if limit := at.Add(-time.Second); jump.After(limit) {
			jump = limit
		}
		g.last = jump
	}
	if filled > 0 {
		g.gapsFilled.Add(1)
		g.metrics.RecordGapSeconds(filled)
	}
}

func (g *GapRecoveryIngestor) dispatch(ctx context.Context, at time.Time, batch models.TickBatch, bulk bool) {
	if err := g.proc.ProcessSecond(ctx, at, batch, bulk); err != nil {
		g.logger.Error("failed to process second", xlogger.Time("at", at), xlogger.Error(err))
	}
	g.prev = batch
	g.last = at
}

func (g *GapRecoveryIngestor) violation(kind string, at time.Time) {
	g.metrics.RecordSequenceViolation(kind)
	if g.limiter.Allow("sequence_" + kind) {
		g.logger.Warn("dropping out of sequence event",
			xlogger.String("kind", kind),
			xlogger.Time("at", at),
			xlogger.Time("last_submitted", g.last),
		)
	}
}
