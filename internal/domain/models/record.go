package models

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// SymbolAttributes accumulates one symbol over one window.
//
// Carried fields survive the window boundary; reset fields are zeroed (or
// re-based on last) when a window starts; overwritten fields are computed
// during finalize.
type SymbolAttributes struct {
	// carried
	VolumeDay float32
	Last      float32
	Bid       float32
	Ask       float32
	BidSize   float32
	AskSize   float32
	Buy       float32
	Sell      float32

	// reset
	VolumeThis        float32
	LargestTradePrice float32
	LargestTradeSize  float32
	High              float32
	Low               float32
	VolAtAsk          float32
	VolNoChange       float32
	VolAtBid          float32
	BidUpTicks        float32
	BidDownTicks      float32
	SaleCount         float32

	// overwritten
	Median     float32
	Mean       float32
	Mode       float32
	ModeCount  float32
	Indicators [IndicatorCount]float32

	// Prices holds trade prices seen in the window, in arrival order.
	Prices         []float32
	LastTickKind   TickKind
	LastVolumeKind TickKind
}

// NewSymbolAttributes returns an empty accumulator.
func NewSymbolAttributes() SymbolAttributes {
	return SymbolAttributes{LastTickKind: TickNone, LastVolumeKind: TickNone}
}

// Fields returns the symbol in record order.
func (s *SymbolAttributes) Fields() [SymbolFieldCount]float32 {
	var f [SymbolFieldCount]float32
	f[FieldVolumeDay] = s.VolumeDay
	f[FieldVolumeThis] = s.VolumeThis
	f[FieldLargestTradePrice] = s.LargestTradePrice
	f[FieldHigh] = s.High
	f[FieldLow] = s.Low
	f[FieldLast] = s.Last
	f[FieldBid] = s.Bid
	f[FieldAsk] = s.Ask
	f[FieldBidSize] = s.BidSize
	f[FieldAskSize] = s.AskSize
	f[FieldMedian] = s.Median
	f[FieldMean] = s.Mean
	f[FieldMode] = s.Mode
	f[FieldBuy] = s.Buy
	f[FieldSell] = s.Sell
	f[FieldLargestTradeSize] = s.LargestTradeSize
	f[FieldModeCount] = s.ModeCount
	f[FieldVolAtAsk] = s.VolAtAsk
	f[FieldVolNoChange] = s.VolNoChange
	f[FieldVolAtBid] = s.VolAtBid
	f[FieldBidUpTicks] = s.BidUpTicks
	f[FieldBidDownTicks] = s.BidDownTicks
	f[FieldSaleCount] = s.SaleCount
	copy(f[FieldIndicators:], s.Indicators[:])
	return f
}

func symbolFromFields(f []float32) SymbolAttributes {
	s := NewSymbolAttributes()
	s.VolumeDay = f[FieldVolumeDay]
	s.VolumeThis = f[FieldVolumeThis]
	s.LargestTradePrice = f[FieldLargestTradePrice]
	s.High = f[FieldHigh]
	s.Low = f[FieldLow]
	s.Last = f[FieldLast]
	s.Bid = f[FieldBid]
	s.Ask = f[FieldAsk]
	s.BidSize = f[FieldBidSize]
	s.AskSize = f[FieldAskSize]
	s.Median = f[FieldMedian]
	s.Mean = f[FieldMean]
	s.Mode = f[FieldMode]
	s.Buy = f[FieldBuy]
	s.Sell = f[FieldSell]
	s.LargestTradeSize = f[FieldLargestTradeSize]
	s.ModeCount = f[FieldModeCount]
	s.VolAtAsk = f[FieldVolAtAsk]
	s.VolNoChange = f[FieldVolNoChange]
	s.VolAtBid = f[FieldVolAtBid]
	s.BidUpTicks = f[FieldBidUpTicks]
	s.BidDownTicks = f[FieldBidDownTicks]
	s.SaleCount = f[FieldSaleCount]
	copy(s.Indicators[:], f[FieldIndicators:SymbolFieldCount])
	return s
}

// SeedFrom copies only the carried fields of src.
func (s *SymbolAttributes) SeedFrom(src *SymbolAttributes) {
	*s = NewSymbolAttributes()
	s.VolumeDay = src.VolumeDay
	s.Last = src.Last
	s.Bid = src.Bid
	s.Ask = src.Ask
	s.BidSize = src.BidSize
	s.AskSize = src.AskSize
	s.Buy = src.Buy
	s.Sell = src.Sell
}

// StartWindow readies s to capture the window that follows prev. Carried
// fields come from prev, high/low and largest price are re-based on prev's
// last, and the counters are zeroed.
func (s *SymbolAttributes) StartWindow(prev *SymbolAttributes) {
	prices := s.Prices[:0]
	s.SeedFrom(prev)
	s.Prices = prices
	s.LastTickKind = prev.LastTickKind
	s.LastVolumeKind = prev.LastVolumeKind
	s.LargestTradePrice = prev.Last
	s.High = prev.Last
	s.Low = prev.Last
}

// WindowRecord is the set of symbol accumulators for one window.
type WindowRecord struct {
	Symbols []SymbolAttributes
}

func NewWindowRecord(symbols int) *WindowRecord {
	r := &WindowRecord{Symbols: make([]SymbolAttributes, symbols)}
	for i := range r.Symbols {
		r.Symbols[i] = NewSymbolAttributes()
	}
	return r
}

// Header is the calendar and cross-market block that precedes the symbols.
type Header struct {
	ID               uint32
	Day              float32
	Hour             float32
	Minute           float32
	Second           float32
	Weekday          float32
	TotalMinutes     float32
	TotalSeconds     float32
	HoursOpen        float32
	HoursRemaining   float32
	MinutesRemaining float32
	Indexes          [HeaderIndexReadings]float32
}

// NewHeader fills the calendar block for a window starting at at, relative
// to a session that runs from start to end past midnight.
func NewHeader(id uint32, at time.Time, start, end time.Duration, indexes [HeaderIndexReadings]float32) Header {
	h, m, s := at.Clock()
	tod := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	open := max(tod-start, 0)
	left := max(end-tod, 0)
	return Header{
		ID:               id,
		Day:              float32(at.Day()),
		Hour:             float32(h),
		Minute:           float32(m),
		Second:           float32(s),
		Weekday:          float32(at.Weekday()),
		TotalMinutes:     float32(h*60 + m),
		TotalSeconds:     float32(h*3600 + m*60 + s),
		HoursOpen:        float32(open / time.Hour),
		HoursRemaining:   float32(left / time.Hour),
		MinutesRemaining: float32(left % time.Hour / time.Minute),
		Indexes:          indexes,
	}
}

func (h Header) slots() []float32 {
	out := []float32{
		h.Day, h.Hour, h.Minute, h.Second, h.Weekday,
		h.TotalMinutes, h.TotalSeconds, h.HoursOpen, h.HoursRemaining, h.MinutesRemaining,
	}
	return append(out, h.Indexes[:]...)
}

// EncodeBrief serializes a header and the symbols into the fixed record.
func EncodeBrief(layout Layout, h Header, symbols []SymbolAttributes) ([]byte, error) {
	if len(symbols) != layout.Symbols {
		return nil, fmt.Errorf("%w: have %d symbols, layout wants %d", ErrRecordSize, len(symbols), layout.Symbols)
	}
	out := make([]byte, layout.RecordSize())
	binary.LittleEndian.PutUint32(out, h.ID)
	off := 4
	for _, v := range h.slots() {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += 4
	}
	off = layout.HeaderSlots * 4
	for i := range symbols {
		for _, v := range symbols[i].Fields() {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
			off += 4
		}
	}
	return out, nil
}

// DecodedBrief is a brief parsed back into named values.
type DecodedBrief struct {
	Header  Header
	Symbols []SymbolAttributes
}

// DecodeBrief parses a full record.
func DecodeBrief(layout Layout, raw []byte) (DecodedBrief, error) {
	if len(raw) != layout.RecordSize() {
		return DecodedBrief{}, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(raw), layout.RecordSize())
	}
	floats := make([]float32, len(raw)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	slots := floats[1:]
	h := Header{
		ID:               binary.LittleEndian.Uint32(raw),
		Day:              slots[0],
		Hour:             slots[1],
		Minute:           slots[2],
		Second:           slots[3],
		Weekday:          slots[4],
		TotalMinutes:     slots[5],
		TotalSeconds:     slots[6],
		HoursOpen:        slots[7],
		HoursRemaining:   slots[8],
		MinutesRemaining: slots[9],
	}
	copy(h.Indexes[:], slots[calendarSlots:calendarSlots+HeaderIndexReadings])

	body := floats[layout.HeaderSlots:]
	syms := make([]SymbolAttributes, layout.Symbols)
	for i := range syms {
		syms[i] = symbolFromFields(body[i*SymbolFieldCount : (i+1)*SymbolFieldCount])
	}
	return DecodedBrief{Header: h, Symbols: syms}, nil
}

// DecodeSeed reads a prior record back for seeding. Only carried fields
// are kept.
func DecodeSeed(layout Layout, raw []byte) ([]SymbolAttributes, error) {
	d, err := DecodeBrief(layout, raw)
	if err != nil {
		return nil, err
	}
	out := make([]SymbolAttributes, len(d.Symbols))
	for i := range d.Symbols {
		out[i].SeedFrom(&d.Symbols[i])
	}
	return out, nil
}

// Brief is an encoded window record keyed by its window id.
type Brief struct {
	ID    uint32
	Bytes []byte
}

// Bar is the per-window summary handed to the indicator engine.
type Bar struct {
	High   float32
	Low    float32
	Close  float32
	Volume float32
}
