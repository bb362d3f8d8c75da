package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickBatch(t *testing.T) {
	l := Layout{Symbols: 2, Indexes: 1, HeaderSlots: DefaultHeaderSlots}
	at := time.Date(2024, 3, 5, 9, 41, 12, 250, time.UTC)
	in := TickBatch{Time: at, Ticks: []Tick{
		{Fraction: 1, Kind: TickBid, ID: 0, Value: 9.5},
		{Fraction: 2, Kind: TickLast, ID: 2, Value: 4100},
		{Fraction: 3, Kind: TickAsk, ID: 3, Value: 1},
	}}
	raw := in.Encode()
	require.Len(t, raw, 8+3*7)

	got, err := ParseTickBatch(append(raw, 0xAA, 0xBB), l)
	require.NoError(t, err)
	assert.True(t, got.Time.Equal(at))
	assert.Equal(t, 2, got.Trailing)
	assert.Equal(t, 1, got.Dropped)
	require.Len(t, got.Ticks, 2)
	assert.Equal(t, in.Ticks[0], got.Ticks[0])
	assert.Equal(t, in.Ticks[1], got.Ticks[1])
}

func TestParseTickBatchTooShort(t *testing.T) {
	_, err := ParseTickBatch(make([]byte, 8), testLayout())
	assert.True(t, errors.Is(err, ErrBatchTooShort))
}

func TestLayoutResolve(t *testing.T) {
	l := Layout{Symbols: 3, Indexes: 2, HeaderSlots: DefaultHeaderSlots}
	n, isIndex, ok := l.Resolve(2)
	assert.True(t, ok)
	assert.False(t, isIndex)
	assert.Equal(t, 2, n)

	n, isIndex, ok = l.Resolve(4)
	assert.True(t, ok)
	assert.True(t, isIndex)
	assert.Equal(t, 1, n)

	_, _, ok = l.Resolve(5)
	assert.False(t, ok)
}

func TestTickStatsDirectionUsesPreviousValue(t *testing.T) {
	var s TickStats
	for _, v := range []float32{10, 11, 11, 9, 12} {
		s.Observe(v)
	}
	assert.Equal(t, uint32(2), s.PeriodUp)
	assert.Equal(t, uint32(1), s.PeriodDown)
	assert.Equal(t, uint32(2), s.PeriodUnchanged)
	assert.Equal(t, float32(9), s.PeriodLow)
	assert.Equal(t, float32(12), s.High)

	s.StartPeriod()
	s.Observe(8)
	assert.Equal(t, float32(8), s.PeriodBegin)
	assert.Equal(t, uint32(1), s.PeriodDown)
	assert.Equal(t, float32(8), s.Low)
}

func TestIndexBoardReadings(t *testing.T) {
	b := NewIndexBoard(DefaultIndexCount)
	assert.True(t, b.Apply(0, TickLast, 4100))
	assert.True(t, b.Apply(6, TickLast, 17))
	assert.False(t, b.Apply(7, TickLast, 1))
	r := b.Readings()
	assert.Equal(t, float32(4100), r[0])
	assert.Equal(t, float32(17), r[15])
}

func TestIndexBoardStartPeriodResetsHeaderKinds(t *testing.T) {
	b := NewIndexBoard(DefaultIndexCount)
	for _, v := range []float32{10, 11, 12} {
		b.Apply(0, TickLast, v)
		b.Apply(0, TickBid, v)
	}
	b.StartPeriod()

	idx, ok := b.Snapshot(0)
	require.True(t, ok)
	last := idx.Kinds[TickLast]
	assert.Zero(t, last.PeriodUp)
	assert.Equal(t, float32(12), last.PeriodBegin)
	assert.Equal(t, float32(10), last.Low)

	// index 0 only reports its last in the header
	bid := idx.Kinds[TickBid]
	assert.Equal(t, uint32(2), bid.PeriodUp)
	assert.Equal(t, float32(10), bid.PeriodBegin)
	assert.Equal(t, float32(12), bid.PeriodHigh)

	_, ok = b.Snapshot(DefaultIndexCount)
	assert.False(t, ok)
}

func TestSessionWindows(t *testing.T) {
	s := Session{
		Location:       time.UTC,
		PreBeginBuffer: 6*time.Hour + 25*time.Minute + time.Second,
		BeginRecord:    6*time.Hour + 25*time.Minute + 6*time.Second,
		EndRecord:      13 * time.Hour,
	}
	tue := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.False(t, s.IsRecordTime(tue.Add(6*time.Hour+25*time.Minute+5*time.Second)))
	assert.True(t, s.IsStreamTime(tue.Add(6*time.Hour+25*time.Minute+5*time.Second)))
	assert.True(t, s.IsRecordTime(tue.Add(13*time.Hour)))
	assert.False(t, s.IsRecordTime(tue.AddDate(0, 0, 4).Add(10*time.Hour)))

	assert.Equal(t, tue.Add(s.PreBeginBuffer), s.NextStreamStart(tue.Add(time.Hour)))
	assert.Equal(t, tue.AddDate(0, 0, 1).Add(s.PreBeginBuffer), s.NextStreamStart(tue.Add(14*time.Hour)))
}
