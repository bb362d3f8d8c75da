package models

import "sync"

// TickStats tracks one tick kind of one market index.
type TickStats struct {
	Last            float32
	PeriodBegin     float32
	PeriodHigh      float32
	PeriodLow       float32
	PeriodUp        uint32
	PeriodUnchanged uint32
	PeriodDown      uint32
	High            float32
	Low             float32
	Updates         uint64

	periodOpen bool
}

// Observe records a new value. Direction is judged against the previous last.
func (s *TickStats) Observe(v float32) {
	prev, first := s.Last, s.Updates == 0
	s.Updates++
	s.Last = v

	if first {
		s.High, s.Low = v, v
	} else {
		s.High = max(s.High, v)
		s.Low = min(s.Low, v)
	}

	if !s.periodOpen {
		s.periodOpen = true
		s.PeriodBegin, s.PeriodHigh, s.PeriodLow = v, v, v
	} else {
		s.PeriodHigh = max(s.PeriodHigh, v)
		s.PeriodLow = min(s.PeriodLow, v)
	}

	switch {
	case first || v == prev:
		s.PeriodUnchanged++
	case v > prev:
		s.PeriodUp++
	default:
		s.PeriodDown++
	}
}

// StartPeriod closes the current period; the next Observe opens a new one.
func (s *TickStats) StartPeriod() {
	s.periodOpen = false
	s.PeriodBegin, s.PeriodHigh, s.PeriodLow = s.Last, s.Last, s.Last
	s.PeriodUp, s.PeriodUnchanged, s.PeriodDown = 0, 0, 0
}

// IndexAttributes holds the per-kind stats of one index.
type IndexAttributes struct {
	Kinds [TickKindCount]TickStats
}

type indexReading struct {
	index int
	kind  TickKind
}

// headerReadings is the fixed order of index values in the brief header.
var headerReadings = [HeaderIndexReadings]indexReading{
	{0, TickLast},
	{1, TickBidSize}, {1, TickBid}, {1, TickAsk},
	{2, TickBid}, {2, TickAsk},
	{3, TickLast},
	{4, TickBidSize}, {4, TickBid}, {4, TickAsk},
	{5, TickBidSize}, {5, TickBid}, {5, TickAsk},
	{6, TickBid}, {6, TickAsk}, {6, TickLast},
}

// IndexBoard holds every tracked index. It is a single shared board rather
// than part of the double buffer, so a tick that lands between a flip and
// the period reset is counted in the following window.
type IndexBoard struct {
	mu      sync.Mutex
	indexes []IndexAttributes
}

func NewIndexBoard(n int) *IndexBoard {
	return &IndexBoard{indexes: make([]IndexAttributes, n)}
}

// Apply records v for the given index and kind. Out of range input is ignored.
func (b *IndexBoard) Apply(index int, kind TickKind, v float32) bool {
	if index < 0 || index >= len(b.indexes) || int(kind) >= TickKindCount {
		return false
	}
	b.mu.Lock()
	b.indexes[index].Kinds[kind].Observe(v)
	b.mu.Unlock()
	return true
}

// Readings returns the header values in record order. Missing indexes read as zero.
func (b *IndexBoard) Readings() [HeaderIndexReadings]float32 {
	var out [HeaderIndexReadings]float32
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range headerReadings {
		if r.index < len(b.indexes) {
			out[i] = b.indexes[r.index].Kinds[r.kind].Last
		}
	}
	return out
}

// Snapshot copies index i.
func (b *IndexBoard) Snapshot(i int) (IndexAttributes, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.indexes) {
		return IndexAttributes{}, false
	}
	return b.indexes[i], true
}

// StartPeriod resets the per-period fields of the kinds the header reads.
// Other kinds keep accumulating across windows.
func (b *IndexBoard) StartPeriod() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range headerReadings {
		if r.index < len(b.indexes) {
			b.indexes[r.index].Kinds[r.kind].StartPeriod()
		}
	}
}
