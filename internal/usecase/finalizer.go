package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/pkg/backoff"
	xlogger "BriefMaker/pkg/logger"
	"BriefMaker/pkg/tinytime"
)

// FinalizerState is the step a window is in while being finalized.
type FinalizerState int32

const (
	StateAccumulating FinalizerState = iota
	StateFlipping
	StateEnriching
	StateRepairing
	StateGating
	StateCommitting
	StateResetting
)

var stateNames = [...]string{"accumulating", "flipping", "enriching", "repairing", "gating", "committing", "resetting"}

func (s FinalizerState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// WindowOutcome is what happened to one finalized window.
type WindowOutcome string

const (
	OutcomeQueued          WindowOutcome = "queued"
	OutcomeBuffered        WindowOutcome = "buffered"
	OutcomeSkippedClosed   WindowOutcome = "skipped_closed"
	OutcomeSkippedGating   WindowOutcome = "skipped_gating"
	OutcomeSkippedReplayed WindowOutcome = "skipped_replayed"
	OutcomeFailed          WindowOutcome = "failed"
)

// LatestBriefKey is the cache key holding the newest committed brief.
const LatestBriefKey = "briefmaker:brief:latest"

// ErrFinalizerClosed is returned for commits queued after Close.
var ErrFinalizerClosed = errors.New("window finalizer closed")

const defaultCommitQueue = 64

// IndicatorFeed turns the bars of one window into indicator vectors. It keeps
// whatever history it needs between calls.
type IndicatorFeed interface {
	Next(ctx context.Context, bars []models.Bar) [][models.IndicatorCount]float32
}

// FinalizerDeps groups the collaborators of WindowFinalizer. Publisher and
// Cache are optional. Retry applies to every storage write.
type FinalizerDeps struct {
	Store      *WindowStore
	Indexes    *models.IndexBoard
	Codec      *tinytime.Codec
	Session    models.Session
	Layout     models.Layout
	Tickers    []string
	Indicators IndicatorFeed
	Storage    domrepo.BriefStorage
	Publisher  domrepo.BriefPublisher
	Cache      domrepo.BriefCache
	CacheTTL   time.Duration
	Metrics    domrepo.Metrics
	Logger     *xlogger.Logger
	Limiter    *ratelimit.Limiter

	Retry backoff.Config
	// CommitQueue is how many live briefs may wait for storage before
	// Finalize blocks.
	CommitQueue int
}

// commitJob is either one live brief or, when flush is set, a request to
// write the bulk buffer.
type commitJob struct {
	ctx   context.Context
	brief models.Brief
	flush chan error
}

// WindowFinalizer turns the capturing side into a brief at every window
// boundary. Storage writes run on a single committer goroutine in id order, so
// capture of the next window never waits on storage.
type WindowFinalizer struct {
	FinalizerDeps
	cfg   RepairConfig
	state atomic.Int32

	mu              sync.Mutex
	gating          bool
	loopsLeft       int
	waiting         []gateFields
	nextExpected    uint32
	onlySaveIfAfter uint32
	sessionBreak    bool
	pending         []models.Brief
	lastCommitted   uint32
	lastCommittedAt time.Time

	qmu     sync.RWMutex
	closed  bool
	queue   chan commitJob
	stopped chan struct{}
}

// NewWindowFinalizer starts the committer goroutine; Close stops it.
func NewWindowFinalizer(deps FinalizerDeps, cfg RepairConfig) *WindowFinalizer {
	if deps.CommitQueue <= 0 {
		deps.CommitQueue = defaultCommitQueue
	}
	f := &WindowFinalizer{
		FinalizerDeps: deps,
		cfg:           cfg,
		gating:        cfg.MaxWaitingLoops > 0,
		loopsLeft:     cfg.MaxWaitingLoops,
		queue:         make(chan commitJob, deps.CommitQueue),
		stopped:       make(chan struct{}),
	}
	go f.runCommitter()
	return f
}

// State returns the current step.
func (f *WindowFinalizer) State() FinalizerState {
	return FinalizerState(f.state.Load())
}

// Resume sets up commit bookkeeping after a restart: windows up to and
// including lastSaved are not saved again.
func (f *WindowFinalizer) Resume(lastSaved uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlySaveIfAfter = lastSaved
	f.nextExpected = lastSaved + 1
	f.lastCommitted = lastSaved
}

// SaveAll lifts the replay guard so every following window is saved.
func (f *WindowFinalizer) SaveAll() {
	f.mu.Lock()
	f.onlySaveIfAfter = 0
	f.mu.Unlock()
}

// Finalize closes the window whose last second is at. A live brief is queued
// for the committer; in bulk mode it is buffered for FlushPending.
func (f *WindowFinalizer) Finalize(ctx context.Context, at time.Time, bulk bool) WindowOutcome {
	start := time.Now()
	defer func() {
		f.state.Store(int32(StateAccumulating))
		f.Metrics.RecordLatency("finalize_window", time.Since(start).Seconds())
	}()

	f.setState(StateFlipping)
	f.Store.FlipWith(startNextWindow)

	f.setState(StateEnriching)
	bars := make([]models.Bar, f.Layout.Symbols)
	f.Store.WithProcessing(func(rec *models.WindowRecord) {
		for i := range rec.Symbols {
			s := &rec.Symbols[i]
			bars[i] = models.Bar{High: s.High, Low: s.Low, Close: s.Last, Volume: s.VolumeThis}
		}
	})
	vectors := f.Indicators.Next(ctx, bars)

	outcome, live := f.finish(at, vectors, bulk)
	if live != nil {
		if err := f.enqueue(ctx, commitJob{ctx: context.WithoutCancel(ctx), brief: *live}); err != nil {
			f.Metrics.RecordError("brief_queue")
			f.Logger.Error("failed to queue brief", xlogger.Uint32("brief_id", live.ID), xlogger.Error(err))
			outcome = OutcomeFailed
		}
	}

	f.setState(StateResetting)
	f.Indexes.StartPeriod()
	f.Metrics.RecordWindow(string(outcome))
	return outcome
}

// finish computes statistics, repairs and encodes the processing side and
// settles commit ordering. It returns the brief to queue for a live commit.
func (f *WindowFinalizer) finish(at time.Time, vectors [][models.IndicatorCount]float32, bulk bool) (WindowOutcome, *models.Brief) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		raw      []byte
		encErr   error
		skip     bool
		warnings strings.Builder
	)
	f.Store.WithProcessing(func(rec *models.WindowRecord) {
		for i := range rec.Symbols {
			s := &rec.Symbols[i]
			st := MedianMeanMode(s.Prices, s.Last)
			s.Median, s.Mean, s.Mode, s.ModeCount = st.Median, st.Mean, st.Mode, st.ModeCount
			if i < len(vectors) {
				s.Indicators = vectors[i]
			} else {
				s.Indicators = [models.IndicatorCount]float32{}
			}
		}

		f.setState(StateRepairing)
		if skip = f.startupGate(rec); skip {
			return
		}
		for i := range rec.Symbols {
			s := &rec.Symbols[i]
			last, ok := f.cfg.syntheticLast(s)
			if !ok && f.Limiter.Allow("synthetic_last") {
				f.Logger.Warn("unable to create synthetic last price",
					xlogger.String("symbol", f.ticker(i)),
					xlogger.Float64("last", float64(s.Last)),
					xlogger.Float64("bid", float64(s.Bid)),
					xlogger.Float64("ask", float64(s.Ask)),
				)
			}
			if f.cfg.RangeWarnings {
				warnings.WriteString(rangeViolations(s, f.ticker(i)))
			}
			f.cfg.repairSymbol(s, last)
			f.Metrics.RecordLastPrice(f.ticker(i), float64(last))
		}

		f.setState(StateGating)
		if !f.Session.IsRecordTime(at) {
			return
		}
		id, err := f.Codec.Encode(at)
		if err != nil {
			encErr = err
			return
		}
		open, closeAt := f.Codec.Session()
		h := models.NewHeader(uint32(id), f.Codec.Decode(id), open, closeAt, f.Indexes.Readings())
		raw, encErr = models.EncodeBrief(f.Layout, h, rec.Symbols)
	})

	if warnings.Len() > 0 && f.Limiter.Allow("range_warning") {
		f.Logger.Warn("brief values out of range",
			xlogger.Time("window", at),
			xlogger.String("details", warnings.String()),
		)
	}

	return f.commit(at, raw, encErr, skip, bulk)
}

// startupGate holds back commits until every symbol has received its first
// values or the waiting budget runs out. Called with f.mu held.
func (f *WindowFinalizer) startupGate(rec *models.WindowRecord) bool {
	if !f.gating {
		return false
	}
	if f.waiting == nil {
		f.waiting = make([]gateFields, len(rec.Symbols))
		for i := range f.waiting {
			f.waiting[i] = allGateFields
		}
	}
	symbolsWaiting := 0
	for i := range rec.Symbols {
		f.waiting[i] &^= presentGateFields(&rec.Symbols[i])
		if f.waiting[i] != 0 {
			symbolsWaiting++
			f.Logger.Debug("waiting for first values",
				xlogger.String("symbol", f.ticker(i)),
				xlogger.String("fields", f.waiting[i].String()),
			)
		}
	}
	switch {
	case symbolsWaiting == 0:
		f.Logger.Info("required values have been filled in", xlogger.Int("loops_left", f.loopsLeft))
		f.stopGating()
		return false
	case f.loopsLeft > 1:
		f.Logger.Info("waiting for all symbols to have data",
			xlogger.Int("symbols_waiting", symbolsWaiting),
			xlogger.Int("loops_left", f.loopsLeft),
		)
		f.loopsLeft--
		return true
	default:
		f.Logger.Info("gave up waiting for first values, filling from similar fields",
			xlogger.Int("symbols_waiting", symbolsWaiting),
		)
		for i := range rec.Symbols {
			forceFill(&rec.Symbols[i])
		}
		f.stopGating()
		return false
	}
}

func (f *WindowFinalizer) stopGating() {
	f.gating, f.loopsLeft, f.waiting = false, 0, nil
}

// commit settles the id sequence for a finalized brief. Called with f.mu held.
func (f *WindowFinalizer) commit(at time.Time, raw []byte, encErr error, gated, bulk bool) (WindowOutcome, *models.Brief) {
	switch {
	case gated:
		f.skipID(at)
		return OutcomeSkippedGating, nil
	case encErr != nil:
		if errors.Is(encErr, tinytime.ErrOutOfDomain) {
			f.sessionBreak = true
			return OutcomeSkippedClosed, nil
		}
		f.Metrics.RecordError("encode_brief")
		f.Logger.Error("failed to encode brief", xlogger.Time("window", at), xlogger.Error(encErr))
		return OutcomeFailed, nil
	case raw == nil:
		f.sessionBreak = true
		return OutcomeSkippedClosed, nil
	}

	f.setState(StateCommitting)
	b := models.Brief{ID: leUint32(raw), Bytes: raw}
	if b.ID <= f.onlySaveIfAfter {
		f.nextExpected = b.ID + 1
		f.sessionBreak = false
		return OutcomeSkippedReplayed, nil
	}
	if b.ID != f.nextExpected {
		if f.nextExpected != 0 && !f.sessionBreak {
			f.Metrics.RecordSequenceViolation("brief_id")
			f.Logger.Warn("brief id will not be continuous",
				xlogger.Uint32("expected", f.nextExpected),
				xlogger.Uint32("actual", b.ID),
			)
		}
		f.nextExpected = b.ID
	}
	f.nextExpected++
	f.sessionBreak = false

	if bulk {
		f.pending = append(f.pending, b)
		f.markCommitted(b.ID)
		return OutcomeBuffered, nil
	}
	return OutcomeQueued, &b
}

func (f *WindowFinalizer) enqueue(ctx context.Context, job commitJob) error {
	f.qmu.RLock()
	defer f.qmu.RUnlock()
	if f.closed {
		return ErrFinalizerClosed
	}
	select {
	case f.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *WindowFinalizer) runCommitter() {
	defer close(f.stopped)
	for job := range f.queue {
		if job.flush != nil {
			job.flush <- f.flushPending(job.ctx)
			continue
		}
		f.insert(job.ctx, job.brief)
	}
}

// insert writes one live brief, then publishes and caches it.
func (f *WindowFinalizer) insert(ctx context.Context, b models.Brief) {
	start := time.Now()
	err := backoff.Execute(ctx, "brief_insert", f.Retry, f.Logger, func(ctx context.Context) error {
		return f.Storage.Insert(ctx, b)
	})
	if err != nil {
		f.Metrics.RecordError("brief_insert")
		f.Logger.Error("failed to insert brief", xlogger.Uint32("brief_id", b.ID), xlogger.Error(err))
		return
	}
	f.Metrics.RecordLatency("brief_insert", time.Since(start).Seconds())
	f.mu.Lock()
	f.markCommitted(b.ID)
	f.mu.Unlock()
	f.publish(ctx, b)
	f.cacheLatest(ctx, b)
}

// FlushPending waits for the live briefs queued so far, then inserts the
// briefs buffered in bulk mode. On failure they are kept for the next flush.
func (f *WindowFinalizer) FlushPending(ctx context.Context) error {
	done := make(chan error, 1)
	if err := f.enqueue(ctx, commitJob{ctx: ctx, flush: done}); err != nil {
		if errors.Is(err, ErrFinalizerClosed) {
			return f.flushPending(ctx)
		}
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes whatever is queued and stops the committer.
func (f *WindowFinalizer) Close() error {
	f.qmu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.qmu.Unlock()
	<-f.stopped
	return nil
}

func (f *WindowFinalizer) flushPending(ctx context.Context) error {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	err := backoff.Execute(ctx, "brief_flush", f.Retry, f.Logger, func(ctx context.Context) error {
		return f.Storage.InsertBatch(ctx, pending)
	})
	if err != nil {
		f.mu.Lock()
		f.pending = append(pending, f.pending...)
		f.mu.Unlock()
		f.Metrics.RecordError("brief_flush")
		return err
	}
	f.Metrics.RecordLatency("brief_flush", time.Since(start).Seconds())
	f.Logger.Info("submitted pending briefs",
		xlogger.Int("count", len(pending)),
		xlogger.Uint32("last_brief_id", pending[len(pending)-1].ID),
	)
	for _, b := range pending {
		f.publish(ctx, b)
	}
	f.cacheLatest(ctx, pending[len(pending)-1])
	return nil
}

// PendingCount returns how many briefs wait for FlushPending.
func (f *WindowFinalizer) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// FinalizerSnapshot is the bookkeeping exposed on the status endpoint.
type FinalizerSnapshot struct {
	State           FinalizerState
	Gating          bool
	LoopsLeft       int
	NextExpected    uint32
	LastCommitted   uint32
	LastCommittedAt time.Time
}

func (f *WindowFinalizer) Snapshot() FinalizerSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FinalizerSnapshot{
		State:           f.State(),
		Gating:          f.gating,
		LoopsLeft:       f.loopsLeft,
		NextExpected:    f.nextExpected,
		LastCommitted:   f.lastCommitted,
		LastCommittedAt: f.lastCommittedAt,
	}
}

func (f *WindowFinalizer) publish(ctx context.Context, b models.Brief) {
	if f.Publisher == nil {
		return
	}
	if err := f.Publisher.PublishBrief(ctx, b); err != nil {
		f.Metrics.RecordError("brief_publish")
		if f.Limiter.Allow("brief_publish") {
			f.Logger.Warn("failed to publish brief", xlogger.Uint32("brief_id", b.ID), xlogger.Error(err))
		}
	}
}

func (f *WindowFinalizer) cacheLatest(ctx context.Context, b models.Brief) {
	if f.Cache == nil {
		return
	}
	if err := f.Cache.SetBytes(ctx, LatestBriefKey, b.Bytes, f.CacheTTL); err != nil {
		f.Metrics.RecordError("brief_cache")
	}
}

func (f *WindowFinalizer) markCommitted(id uint32) {
	f.lastCommitted = id
	f.lastCommittedAt = f.Codec.Decode(tinytime.TinyTime(id))
}

// skipID keeps the expected id moving through windows that are not saved.
func (f *WindowFinalizer) skipID(at time.Time) {
	if id, err := f.Codec.Encode(at); err == nil {
		f.nextExpected = uint32(id) + 1
	}
}

func (f *WindowFinalizer) setState(s FinalizerState) {
	f.state.Store(int32(s))
}

func (f *WindowFinalizer) ticker(i int) string {
	if i < len(f.Tickers) {
		return f.Tickers[i]
	}
	return "sym" + strconv.Itoa(i)
}

func leUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
