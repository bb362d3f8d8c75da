package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BriefMaker/internal/domain/models"
	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/pkg/backoff"
	xlogger "BriefMaker/pkg/logger"
)

// recorder is a SecondProcessor that remembers what it was given.
type recorder struct {
	mu      sync.Mutex
	at      []time.Time
	values  []float32
	bulk    []bool
	flushes int
}

func (r *recorder) ProcessSecond(_ context.Context, at time.Time, batch models.TickBatch, bulk bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.at = append(r.at, at)
	v := float32(-1)
	if len(batch.Ticks) > 0 {
		v = batch.Ticks[0].Value
	}
	r.values = append(r.values, v)
	r.bulk = append(r.bulk, bulk)
	return nil
}

func (r *recorder) FlushPending(context.Context) error {
	r.mu.Lock()
	r.flushes++
	r.mu.Unlock()
	return nil
}

func marker(v float32) models.TickBatch {
	return models.TickBatch{Ticks: []models.Tick{{Kind: models.TickLast, ID: 0, Value: v}}}
}

func raw(at time.Time, v float32) []byte {
	b := marker(v)
	b.Time = at
	return b.Encode()
}

func newTestIngestor(pageSize int) (*GapRecoveryIngestor, *recorder, *memSource, *countingMetrics) {
	rec, src, m := &recorder{}, &memSource{}, newCountingMetrics()
	g := NewGapRecoveryIngestor(rec, src, testSession(), testLayout(), IngestorConfig{
		PageSize: pageSize,
		LargeGap: time.Hour,
		Retry:    backoff.Config{InitialInterval: time.Millisecond, MaxElapsedTime: 20 * time.Millisecond},
	}, m, xlogger.Nop(), ratelimit.New(100, 100))
	return g, rec, src, m
}

func seconds(t0 time.Time, offsets ...int) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, o := range offsets {
		out[i] = t0.Add(time.Duration(o) * time.Second)
	}
	return out
}

func TestReplayFillsGapWithPreviousBatch(t *testing.T) {
	g, rec, src, m := newTestIngestor(3600)
	t0 := monday(9, 0, 0)
	src.add(t0, marker(0))
	src.add(t0.Add(time.Second), marker(1))
	src.add(t0.Add(4*time.Second), marker(4))

	n, err := g.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, seconds(t0, 0, 1, 2, 3, 4), rec.at)
	assert.Equal(t, []float32{0, 1, 1, 1, 4}, rec.values)
	assert.Equal(t, 2, m.gapSeconds)
	assert.Equal(t, uint64(1), g.GapsFilled())
	assert.Equal(t, t0.Add(4*time.Second), g.LastSubmitted())
	assert.False(t, g.Replaying())
}

func TestReplaySkipsClosedHours(t *testing.T) {
	g, rec, src, _ := newTestIngestor(3600)
	src.add(monday(5, 0, 0), marker(1))
	src.add(monday(6, 0, 0), marker(2))

	_, err := g.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday(6, 0, 0)}, rec.at)
	assert.Equal(t, []float32{2}, rec.values)
}

func TestReplayJumpsOverNight(t *testing.T) {
	g, rec, src, m := newTestIngestor(3600)
	tuesday := monday(6, 0, 1).AddDate(0, 0, 1)
	src.add(monday(13, 59, 59), marker(1))
	src.add(tuesday, marker(2))

	_, err := g.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday(13, 59, 59), tuesday.Add(-time.Second), tuesday}, rec.at)
	assert.Equal(t, []float32{1, 1, 2}, rec.values)
	assert.Equal(t, 1, m.gapSeconds)
}

func TestReplayPagesAndFlushes(t *testing.T) {
	g, rec, src, _ := newTestIngestor(2)
	t0 := monday(9, 0, 0)
	for i := 0; i < 5; i++ {
		src.add(t0.Add(time.Duration(i)*time.Second), marker(float32(i)))
	}

	n, err := g.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, rec.flushes)
	assert.Equal(t, 3, src.calls)
	for _, bulk := range rec.bulk {
		assert.True(t, bulk)
	}
}

func TestSubmitColdStartSeedsCadence(t *testing.T) {
	g, rec, _, _ := newTestIngestor(3600)
	t0 := monday(9, 0, 0)

	require.NoError(t, g.Submit(context.Background(), raw(t0, 1)))
	assert.Empty(t, rec.at)
	assert.Equal(t, t0, g.LastSubmitted())

	require.NoError(t, g.Submit(context.Background(), raw(t0.Add(time.Second), 2)))
	assert.Equal(t, seconds(t0, 1), rec.at)
	assert.Equal(t, []bool{false}, rec.bulk)
}

func TestSubmitDropsOutOfSequence(t *testing.T) {
	g, rec, _, m := newTestIngestor(3600)
	t0 := monday(9, 0, 0)
	g.SetLastSubmitted(t0)

	require.ErrorIs(t, g.Submit(context.Background(), raw(t0, 1)), ErrSequenceViolation)
	require.ErrorIs(t, g.Submit(context.Background(), raw(t0.Add(-5*time.Second), 1)), ErrSequenceViolation)
	assert.Equal(t, 1, m.violation("duplicate"))
	assert.Equal(t, 1, m.violation("past"))
	assert.Empty(t, rec.at)

	require.NoError(t, g.Submit(context.Background(), raw(t0.Add(time.Second), 1)))
	assert.Equal(t, seconds(t0, 1), rec.at)
}

func TestSubmitCatchesUpFromSource(t *testing.T) {
	g, rec, src, _ := newTestIngestor(3600)
	t0 := monday(9, 0, 0)
	g.SetLastSubmitted(t0)
	src.add(t0.Add(time.Second), marker(1))
	src.add(t0.Add(2*time.Second), marker(2))

	require.NoError(t, g.Submit(context.Background(), raw(t0.Add(3*time.Second), 3)))
	assert.Equal(t, seconds(t0, 1, 2, 3), rec.at)
	assert.Equal(t, []bool{true, true, false}, rec.bulk)
	assert.Equal(t, 1, rec.flushes)
}

func TestSubmitReportsUnfilledGap(t *testing.T) {
	g, rec, _, m := newTestIngestor(3600)
	t0 := monday(9, 0, 0)
	g.SetLastSubmitted(t0)

	err := g.Submit(context.Background(), raw(t0.Add(5*time.Second), 1))
	require.ErrorIs(t, err, ErrGapUnfilled)
	assert.Empty(t, rec.at)
	assert.Equal(t, 1, m.violation("gap_unfilled"))
	assert.Equal(t, t0, g.LastSubmitted())
}

func TestSubmitWhileSuspended(t *testing.T) {
	g, rec, _, m := newTestIngestor(3600)
	g.Suspend()
	require.NoError(t, g.Submit(context.Background(), raw(monday(9, 0, 0), 1)))
	assert.Equal(t, 1, m.dropped["suspended"])
	assert.True(t, g.LastSubmitted().IsZero())

	g.Resume()
	require.ErrorIs(t, g.Submit(context.Background(), []byte{1, 2, 3}), models.ErrBatchTooShort)
	assert.Empty(t, rec.at)
}

func TestReplayEndToEndKeepsIDsContiguous(t *testing.T) {
	h := newHarness(t, noGating())
	start, gapFrom, gapTo := monday(9, 0, 0), monday(9, 20, 0), monday(9, 30, 0)
	for at := start; at.Before(monday(10, 0, 0)); at = at.Add(time.Second) {
		if !at.Before(gapFrom) && at.Before(gapTo) {
			continue
		}
		h.source.add(at, quoteBatch(10))
	}

	n, err := h.ingestor.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000, n)

	ids := h.storage.ids()
	require.Len(t, ids, 600)
	first := h.id(t, monday(9, 0, 5))
	for i, id := range ids {
		require.Equal(t, first+uint32(i), id)
	}
	assert.Equal(t, 600, h.metrics.gapSeconds)
	assert.Zero(t, h.metrics.violation("brief_id"))
	assert.Equal(t, 600, h.metrics.windows[string(OutcomeBuffered)])
	assert.Zero(t, h.finalizer.PendingCount())
}

func TestSubmitKeepsCapturingWhileStorageBlocks(t *testing.T) {
	h := newHarness(t, noGating())
	ctx := context.Background()
	release := h.storage.block()
	t.Cleanup(release)
	h.ingestor.SetLastSubmitted(monday(9, 0, 4))

	done := make(chan error, 1)
	go func() {
		// 9:00:05 closes a window and queues its brief
		if err := h.ingestor.Submit(ctx, raw(monday(9, 0, 5), 10)); err != nil {
			done <- err
			return
		}
		done <- h.ingestor.Submit(ctx, raw(monday(9, 0, 6), 11))
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tick batch for 9:00:06 waited for a blocked storage insert")
	}
	assert.Equal(t, monday(9, 0, 6), h.ingestor.LastSubmitted())
	assert.Empty(t, h.storage.ids())

	release()
	require.NoError(t, h.service.Flush(ctx))
	assert.Equal(t, []uint32{h.id(t, monday(9, 0, 5))}, h.storage.ids())
}

type stubSubmitter struct{ err error }

func (s stubSubmitter) Submit(context.Context, []byte) error { return s.err }

func TestTickBatchHandlerDropsSequenceViolations(t *testing.T) {
	m := newCountingMetrics()
	h := NewTickBatchHandler("ticks", stubSubmitter{err: ErrSequenceViolation}, m)
	assert.Equal(t, "ticks", h.Topic())
	require.NoError(t, h.Handle(context.Background(), nil))

	h = NewTickBatchHandler("ticks", stubSubmitter{err: ErrGapUnfilled}, m)
	require.ErrorIs(t, h.Handle(context.Background(), nil), ErrGapUnfilled)
	assert.Equal(t, 1, m.errs["consumer_submit"])
}
