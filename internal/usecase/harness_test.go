package usecase

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/pkg/backoff"
	xlogger "BriefMaker/pkg/logger"
	"BriefMaker/pkg/tinytime"
)

// monday is 2024-03-04, a Monday.
func monday(h, m, s int) time.Time {
	return time.Date(2024, time.March, 4, h, m, s, 0, time.UTC)
}

func testLayout() models.Layout {
	return models.Layout{Symbols: 2, Indexes: models.DefaultIndexCount, HeaderSlots: models.DefaultHeaderSlots}
}

func testSession() models.Session {
	return models.Session{
		Location:       time.UTC,
		PreBeginBuffer: 6 * time.Hour,
		BeginRecord:    6 * time.Hour,
		EndRecord:      14*time.Hour - time.Second,
	}
}

// memStorage is an in-memory BriefStorage. Existing ids are not replaced.
type memStorage struct {
	mu          sync.Mutex
	briefs      map[uint32]models.Brief
	insertErr   error
	batchErr    error
	failBatch   int
	batches     int
	insertGate  chan struct{}
	releaseOnce sync.Once
}

func newMemStorage() *memStorage {
	return &memStorage{briefs: make(map[uint32]models.Brief)}
}

func (m *memStorage) Init(context.Context) error { return nil }

func (m *memStorage) setInsertErr(err error) {
	m.mu.Lock()
	m.insertErr = err
	m.mu.Unlock()
}

func (m *memStorage) setBatchErr(err error) {
	m.mu.Lock()
	m.batchErr = err
	m.mu.Unlock()
}

// failBatches makes the next n batch inserts fail.
func (m *memStorage) failBatches(n int) {
	m.mu.Lock()
	m.failBatch = n
	m.mu.Unlock()
}

// block holds every Insert until the returned release is called.
func (m *memStorage) block() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.insertGate = gate
	m.mu.Unlock()
	return func() { m.releaseOnce.Do(func() { close(gate) }) }
}

func (m *memStorage) Insert(_ context.Context, b models.Brief) error {
	m.mu.Lock()
	gate := m.insertGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.briefs[b.ID]; !ok {
		m.briefs[b.ID] = b
	}
	return nil
}

func (m *memStorage) InsertBatch(_ context.Context, briefs []models.Brief) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return m.batchErr
	}
	if m.failBatch > 0 {
		m.failBatch--
		return errStorageDown
	}
	m.batches++
	for _, b := range briefs {
		if _, ok := m.briefs[b.ID]; !ok {
			m.briefs[b.ID] = b
		}
	}
	return nil
}

func (m *memStorage) sortedLocked() []uint32 {
	ids := make([]uint32, 0, len(m.briefs))
	for id := range m.briefs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *memStorage) ids() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

func (m *memStorage) QueryLatest(context.Context) (models.Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.sortedLocked()
	if len(ids) == 0 {
		return models.Brief{}, domrepo.ErrNoBriefs
	}
	return m.briefs[ids[len(ids)-1]], nil
}

func (m *memStorage) QueryBefore(_ context.Context, before uint32) (models.Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.sortedLocked()
	if len(ids) == 0 {
		return models.Brief{}, domrepo.ErrNoBriefs
	}
	best := ids[0]
	for _, id := range ids {
		if id < before {
			best = id
		}
	}
	return m.briefs[best], nil
}

func (m *memStorage) QueryRange(_ context.Context, from, to uint32, limit int) ([]models.Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Brief
	for _, id := range m.sortedLocked() {
		if id >= from && id <= to && len(out) < limit {
			out = append(out, m.briefs[id])
		}
	}
	return out, nil
}

func (m *memStorage) Health(context.Context) error { return nil }
func (m *memStorage) Close() error                 { return nil }

// memSource serves moments in time order.
type memSource struct {
	mu      sync.Mutex
	moments []models.StreamMoment
	calls   int
}

func (s *memSource) add(at time.Time, batch models.TickBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch.Time = at
	s.moments = append(s.moments, models.StreamMoment{Time: at, Data: batch.Encode()})
}

func (s *memSource) MomentsSince(_ context.Context, from time.Time, limit int) ([]models.StreamMoment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []models.StreamMoment
	for _, m := range s.moments {
		if !m.Time.Before(from) && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

// countingMetrics records what the pipeline reports.
type countingMetrics struct {
	mu         sync.Mutex
	windows    map[string]int
	violations map[string]int
	dropped    map[string]int
	errs       map[string]int
	gapSeconds int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		windows:    make(map[string]int),
		violations: make(map[string]int),
		dropped:    make(map[string]int),
		errs:       make(map[string]int),
	}
}

func (c *countingMetrics) RecordTicks(string, int) {}
func (c *countingMetrics) RecordDropped(reason string, n int) {
	c.mu.Lock()
	c.dropped[reason] += n
	c.mu.Unlock()
}
func (c *countingMetrics) RecordWindow(outcome string) {
	c.mu.Lock()
	c.windows[outcome]++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordGapSeconds(n int) {
	c.mu.Lock()
	c.gapSeconds += n
	c.mu.Unlock()
}
func (c *countingMetrics) RecordSequenceViolation(kind string) {
	c.mu.Lock()
	c.violations[kind]++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordReplayProgress(time.Time) {}
func (c *countingMetrics) RecordError(kind string) {
	c.mu.Lock()
	c.errs[kind]++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordLastPrice(string, float64) {}
func (c *countingMetrics) RecordLatency(string, float64)   {}

func (c *countingMetrics) errCount(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[kind]
}

func (c *countingMetrics) violation(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.violations[kind]
}

type zeroFeed struct{}

func (zeroFeed) Next(context.Context, []models.Bar) [][models.IndicatorCount]float32 { return nil }

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string][]byte)
	}
	c.m[key] = value
	return nil
}

type memPublisher struct {
	mu  sync.Mutex
	ids []uint32
	err error
}

func (p *memPublisher) PublishBrief(_ context.Context, b models.Brief) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, b.ID)
	return nil
}

func (p *memPublisher) Close() error { return nil }

var errStorageDown = errors.New("storage down")

var testRetry = backoff.Config{InitialInterval: time.Millisecond, MaxElapsedTime: 50 * time.Millisecond}

// harness wires a full pipeline over in-memory collaborators.
type harness struct {
	layout     models.Layout
	codec      *tinytime.Codec
	store      *WindowStore
	indexes    *models.IndexBoard
	dispatcher *TickDispatcher
	finalizer  *WindowFinalizer
	pipeline   *BriefPipeline
	ingestor   *GapRecoveryIngestor
	service    *BriefService
	storage    *memStorage
	source     *memSource
	metrics    *countingMetrics
	cache      *memCache
	publisher  *memPublisher
}

func newHarness(t *testing.T, cfg RepairConfig) *harness {
	t.Helper()
	codec, err := tinytime.New()
	require.NoError(t, err)

	h := &harness{
		layout:    testLayout(),
		codec:     codec,
		storage:   newMemStorage(),
		source:    &memSource{},
		metrics:   newCountingMetrics(),
		cache:     &memCache{},
		publisher: &memPublisher{},
	}
	log := xlogger.Nop()
	limiter := ratelimit.New(100, 100)

	h.store = NewWindowStore(h.layout.Symbols)
	h.indexes = models.NewIndexBoard(h.layout.Indexes)
	h.dispatcher = NewTickDispatcher(h.store, h.indexes, h.layout, h.metrics, log, limiter)
	h.finalizer = NewWindowFinalizer(FinalizerDeps{
		Store:      h.store,
		Indexes:    h.indexes,
		Codec:      codec,
		Session:    testSession(),
		Layout:     h.layout,
		Tickers:    []string{"AAA", "BBB"},
		Indicators: zeroFeed{},
		Storage:    h.storage,
		Publisher:  h.publisher,
		Cache:      h.cache,
		CacheTTL:   time.Minute,
		Metrics:    h.metrics,
		Logger:     log,
		Limiter:    limiter,
		Retry:      testRetry,
	}, cfg)
	t.Cleanup(func() { _ = h.finalizer.Close() })
	h.pipeline = NewBriefPipeline(h.dispatcher, h.finalizer, codec.Resolution(), h.metrics, log)
	h.ingestor = NewGapRecoveryIngestor(h.pipeline, h.source, testSession(), h.layout, IngestorConfig{
		PageSize: 3600,
		LargeGap: time.Hour,
		Retry:    testRetry,
	}, h.metrics, log, limiter)
	h.service = NewBriefService(h.store, h.finalizer, h.pipeline, h.ingestor, h.storage, h.cache,
		codec, testSession(), h.layout, []string{"AAA", "BBB"}, 5, log)
	return h
}

func noGating() RepairConfig {
	cfg := DefaultRepairConfig()
	cfg.MaxWaitingLoops = 0
	return cfg
}

// quoteBatch sets every gated field of both symbols around price.
func quoteBatch(price float32) models.TickBatch {
	var ticks []models.Tick
	for id := uint8(0); id < 2; id++ {
		ticks = append(ticks,
			models.Tick{Kind: models.TickBid, ID: id, Value: price - 0.01},
			models.Tick{Kind: models.TickAsk, ID: id, Value: price + 0.01},
			models.Tick{Kind: models.TickBidSize, ID: id, Value: 500},
			models.Tick{Kind: models.TickAskSize, ID: id, Value: 700},
			models.Tick{Kind: models.TickLast, ID: id, Value: price},
			models.Tick{Kind: models.TickLastSize, ID: id, Value: 100},
			models.Tick{Kind: models.TickVolume, ID: id, Value: 10000},
		)
	}
	return models.TickBatch{Ticks: ticks}
}

func (h *harness) id(t *testing.T, at time.Time) uint32 {
	t.Helper()
	id, err := h.codec.Encode(at)
	require.NoError(t, err)
	return uint32(id)
}

func (h *harness) decode(t *testing.T, id uint32) models.DecodedBrief {
	t.Helper()
	briefs, err := h.storage.QueryRange(context.Background(), id, id, 1)
	require.NoError(t, err)
	require.Len(t, briefs, 1)
	d, err := models.DecodeBrief(h.layout, briefs[0].Bytes)
	require.NoError(t, err)
	return d
}
