package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BriefMaker/internal/domain/models"
)

func capturing(h *harness, symbol int) models.SymbolAttributes {
	var s models.SymbolAttributes
	h.store.WithCapturing(func(rec *models.WindowRecord) { s = rec.Symbols[symbol] })
	return s
}

func TestDispatcherBidSizeTicks(t *testing.T) {
	h := newHarness(t, noGating())
	for _, v := range []float32{10, 12, 11, 11} {
		require.NoError(t, h.dispatcher.Apply(0, models.TickBidSize, v))
	}
	s := capturing(h, 0)
	assert.Equal(t, float32(2), s.BidUpTicks)
	assert.Equal(t, float32(1), s.BidDownTicks)
	assert.Equal(t, float32(11), s.BidSize)
}

func TestDispatcherSolidifyAndConfirm(t *testing.T) {
	h := newHarness(t, noGating())
	require.NoError(t, h.dispatcher.Apply(0, models.TickBid, 10))
	require.NoError(t, h.dispatcher.Apply(0, models.TickAsk, 10.02))

	h.dispatcher.Solidify()
	s := capturing(h, 0)
	assert.Equal(t, float32(-10), s.Sell)
	assert.Equal(t, float32(-10.02), s.Buy)

	// a falling bid confirms buy, a rising ask confirms sell
	require.NoError(t, h.dispatcher.Apply(0, models.TickBid, 9.99))
	require.NoError(t, h.dispatcher.Apply(0, models.TickAsk, 10.03))
	s = capturing(h, 0)
	assert.Equal(t, float32(10.02), s.Buy)
	assert.Equal(t, float32(10), s.Sell)
	assert.Equal(t, float32(9.99), s.Bid)
	assert.Equal(t, float32(10.03), s.Ask)
}

func TestDispatcherTradeVolume(t *testing.T) {
	h := newHarness(t, noGating())
	apply := func(kind models.TickKind, v float32) {
		t.Helper()
		require.NoError(t, h.dispatcher.Apply(0, kind, v))
	}
	apply(models.TickBid, 10)
	apply(models.TickAsk, 10.02)
	apply(models.TickLast, 10.02)
	apply(models.TickLastSize, 100)
	// repeated size report for the same trade
	apply(models.TickLastSize, 50)

	s := capturing(h, 0)
	assert.Equal(t, float32(100), s.VolAtAsk)
	assert.Zero(t, s.VolNoChange)
	assert.Equal(t, float32(1), s.SaleCount)
	assert.Equal(t, float32(100), s.VolumeThis)
	assert.Equal(t, float32(100), s.LargestTradeSize)
	assert.Equal(t, float32(10.02), s.LargestTradePrice)
	assert.Equal(t, []float32{10.02}, s.Prices)

	apply(models.TickVolume, 5000)
	apply(models.TickLastSize, 30)
	s = capturing(h, 0)
	assert.Equal(t, float32(5000), s.VolumeDay)
	assert.Equal(t, float32(30), s.VolNoChange)
	assert.Equal(t, float32(130), s.VolAtAsk)
	assert.Equal(t, float32(2), s.SaleCount)
	assert.Equal(t, float32(100), s.LargestTradeSize)
	assert.Equal(t, float32(10.02), s.LargestTradePrice)

	apply(models.TickLast, 10.5)
	apply(models.TickLastSize, 250)
	s = capturing(h, 0)
	assert.Equal(t, float32(250), s.LargestTradeSize)
	assert.Equal(t, float32(10.5), s.LargestTradePrice)
}

func TestDispatcherVolumeAtBid(t *testing.T) {
	h := newHarness(t, noGating())
	require.NoError(t, h.dispatcher.Apply(1, models.TickAsk, 10.05))
	require.NoError(t, h.dispatcher.Apply(1, models.TickBid, 10))
	require.NoError(t, h.dispatcher.Apply(1, models.TickLast, 10))
	require.NoError(t, h.dispatcher.Apply(1, models.TickLastSize, 40))

	s := capturing(h, 1)
	assert.Equal(t, float32(40), s.VolAtBid)
	assert.Zero(t, s.VolAtAsk)
	assert.Equal(t, float32(10), s.High)
	assert.Equal(t, float32(10), s.Low)
}

func TestDispatcherUnknownKindLeavesRecord(t *testing.T) {
	h := newHarness(t, noGating())
	require.NoError(t, h.dispatcher.Apply(0, models.TickLast, 10))
	before := capturing(h, 0)

	err := h.dispatcher.Apply(0, models.TickHigh, 99)
	require.ErrorIs(t, err, models.ErrUnknownTickKind)
	assert.Equal(t, before, capturing(h, 0))

	require.Error(t, h.dispatcher.Apply(5, models.TickLast, 1))
}

func TestDispatcherApplyBatchRoutesIndexes(t *testing.T) {
	h := newHarness(t, noGating())
	batch := models.TickBatch{Ticks: []models.Tick{
		{Kind: models.TickLast, ID: 0, Value: 10},
		{Kind: models.TickLast, ID: 2, Value: 4500}, // index 0
		{Kind: models.TickHigh, ID: 0, Value: 11},   // not a symbol kind
	}, Dropped: 1}

	applied := h.dispatcher.ApplyBatch(batch)
	assert.Equal(t, 2, applied)

	idx, ok := h.indexes.Snapshot(0)
	require.True(t, ok)
	assert.Equal(t, float32(4500), idx.Kinds[models.TickLast].Last)
	assert.Equal(t, float32(4500), h.indexes.Readings()[0])
	assert.Equal(t, 2, h.metrics.dropped["tick"])
}
