package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	xlogger "BriefMaker/pkg/logger"
	"BriefMaker/pkg/tinytime"
)

// BriefService owns the startup sequence and the read side of the pipeline.
type BriefService struct {
	store        *WindowStore
	finalizer    *WindowFinalizer
	pipeline     *BriefPipeline
	ingestor     *GapRecoveryIngestor
	storage      domrepo.BriefStorage
	cache        domrepo.BriefCache
	codec        *tinytime.Codec
	session      models.Session
	layout       models.Layout
	tickers      []string
	replayAmount uint32
	logger       *xlogger.Logger
}

func NewBriefService(
	store *WindowStore,
	finalizer *WindowFinalizer,
	pipeline *BriefPipeline,
	ingestor *GapRecoveryIngestor,
	storage domrepo.BriefStorage,
	cache domrepo.BriefCache,
	codec *tinytime.Codec,
	session models.Session,
	layout models.Layout,
	tickers []string,
	replayAmount uint32,
	logger *xlogger.Logger,
) *BriefService {
	return &BriefService{
		store:        store,
		finalizer:    finalizer,
		pipeline:     pipeline,
		ingestor:     ingestor,
		storage:      storage,
		cache:        cache,
		codec:        codec,
		session:      session,
		layout:       layout,
		tickers:      tickers,
		replayAmount: replayAmount,
		logger:       logger,
	}
}

// Start restores state from the newest stored briefs, replays the moments
// stored since, then opens the live path.
func (s *BriefService) Start(ctx context.Context) error {
	s.ingestor.Suspend()
	defer s.ingestor.Resume()

	if err := s.restore(ctx); err != nil {
		return err
	}

	started := time.Now()
	n, err := s.ingestor.Replay(ctx)
	if err != nil {
		return fmt.Errorf("startup replay: %w", err)
	}
	s.finalizer.SaveAll()
	s.logger.Info("startup replay finished",
		xlogger.Int("moments", n),
		xlogger.Duration("took_ms", time.Since(started)),
		xlogger.Time("last_submitted", s.ingestor.LastSubmitted()),
	)
	return nil
}

func (s *BriefService) restore(ctx context.Context) error {
	latest, err := s.storage.QueryLatest(ctx)
	if errors.Is(err, domrepo.ErrNoBriefs) {
		s.logger.Info("no stored briefs, starting cold")
		return nil
	}
	if err != nil {
		return fmt.Errorf("query latest brief: %w", err)
	}
	s.finalizer.Resume(latest.ID)

	start := latest
	if latest.ID > s.replayAmount {
		if b, err := s.storage.QueryBefore(ctx, latest.ID-s.replayAmount); err == nil {
			start = b
		} else if !errors.Is(err, domrepo.ErrNoBriefs) {
			return fmt.Errorf("query replay start brief: %w", err)
		}
	}

	seed, err := models.DecodeSeed(s.layout, start.Bytes)
	if err != nil {
		s.logger.Error("stored brief does not match the configured layout, starting cold",
			xlogger.Uint32("brief_id", start.ID),
			xlogger.Int("bytes", len(start.Bytes)),
			xlogger.Error(err),
		)
		return nil
	}
	s.store.Seed(seed)
	s.ingestor.SetLastSubmitted(s.codec.Decode(tinytime.TinyTime(start.ID)))
	s.logger.Info("restored from stored briefs",
		xlogger.Uint32("latest_id", latest.ID),
		xlogger.Uint32("replay_from_id", start.ID),
	)
	return nil
}

// Submit forwards a live tick batch to the ingestor.
func (s *BriefService) Submit(ctx context.Context, raw []byte) error {
	return s.ingestor.Submit(ctx, raw)
}

// Flush writes any buffered briefs.
func (s *BriefService) Flush(ctx context.Context) error {
	return s.finalizer.FlushPending(ctx)
}

// Status reports the pipeline state.
func (s *BriefService) Status(now time.Time) models.PipelineStatus {
	snap := s.finalizer.Snapshot()
	mode := "live"
	if s.ingestor.Replaying() {
		mode = "replay"
	}
	return models.PipelineStatus{
		Mode:             mode,
		MarketOpen:       s.session.IsRecordTime(now),
		State:            snap.State.String(),
		LastCommittedID:  snap.LastCommitted,
		LastCommittedAt:  snap.LastCommittedAt,
		NextExpectedID:   snap.NextExpected,
		Gating:           snap.Gating,
		GatingLoopsLeft:  snap.LoopsLeft,
		EventsDispatched: s.pipeline.Dispatched(),
		GapsFilled:       s.ingestor.GapsFilled(),
		LastSubmitted:    s.ingestor.LastSubmitted(),
	}
}

// Latest returns the newest brief, from the cache when possible.
func (s *BriefService) Latest(ctx context.Context) (models.BriefView, error) {
	if s.cache != nil {
		if raw, ok, err := s.cache.GetBytes(ctx, LatestBriefKey); err == nil && ok && len(raw) >= 4 {
			return s.view(models.Brief{ID: leUint32(raw), Bytes: raw}), nil
		}
	}
	b, err := s.storage.QueryLatest(ctx)
	if err != nil {
		return models.BriefView{}, err
	}
	return s.view(b), nil
}

// Range lists stored briefs with from <= id <= to.
func (s *BriefService) Range(ctx context.Context, req models.BriefRangeRequest) ([]models.BriefView, error) {
	briefs, err := s.storage.QueryRange(ctx, req.From, req.To, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("query briefs: %w", err)
	}
	out := make([]models.BriefView, len(briefs))
	for i, b := range briefs {
		out[i] = s.view(b)
	}
	return out, nil
}

// Decoded returns brief id with its fields named.
func (s *BriefService) Decoded(ctx context.Context, id uint32) (models.DecodedBriefView, error) {
	briefs, err := s.storage.QueryRange(ctx, id, id, 1)
	if err != nil {
		return models.DecodedBriefView{}, fmt.Errorf("query brief %d: %w", id, err)
	}
	if len(briefs) == 0 {
		return models.DecodedBriefView{}, fmt.Errorf("brief %d: %w", id, domrepo.ErrNoBriefs)
	}
	d, err := models.DecodeBrief(s.layout, briefs[0].Bytes)
	if err != nil {
		return models.DecodedBriefView{}, err
	}
	return models.DecodedBriefView{
		ID:      id,
		Time:    s.codec.Decode(tinytime.TinyTime(id)),
		Header:  d.Header,
		Symbols: NamedFields(d, s.tickers),
	}, nil
}

// NamedFields maps every symbol of d to its field values keyed by name.
func NamedFields(d models.DecodedBrief, tickers []string) map[string]map[string]float32 {
	out := make(map[string]map[string]float32, len(d.Symbols))
	for i := range d.Symbols {
		name := fmt.Sprintf("sym%d", i)
		if i < len(tickers) {
			name = tickers[i]
		}
		fields := d.Symbols[i].Fields()
		m := make(map[string]float32, len(fields))
		for j, v := range fields {
			m[models.FieldNames[j]] = v
		}
		out[name] = m
	}
	return out
}

// IDAt returns the id of the last window that starts at or before t.
func (s *BriefService) IDAt(t time.Time) (uint32, error) {
	tt, err := s.codec.Floor(t)
	if err != nil {
		return 0, err
	}
	return uint32(tt), nil
}

func (s *BriefService) view(b models.Brief) models.BriefView {
	return models.BriefView{ID: b.ID, Time: s.codec.Decode(tinytime.TinyTime(b.ID)), Bytes: b.Bytes}
}
