package models

import (
	"errors"
	"fmt"
)

// Per-symbol field positions inside a brief body.
const (
	FieldVolumeDay = iota
	FieldVolumeThis
	FieldLargestTradePrice
	FieldHigh
	FieldLow
	FieldLast
	FieldBid
	FieldAsk
	FieldBidSize
	FieldAskSize
	FieldMedian
	FieldMean
	FieldMode
	FieldBuy
	FieldSell
	FieldLargestTradeSize
	FieldModeCount
	FieldVolAtAsk
	FieldVolNoChange
	FieldVolAtBid
	FieldBidUpTicks
	FieldBidDownTicks
	FieldSaleCount
	FieldIndicators

	IndicatorCount   = 9
	SymbolFieldCount = FieldIndicators + IndicatorCount
)

// FieldNames lists the symbol fields in record order.
var FieldNames = [SymbolFieldCount]string{
	"volume_day", "volume_ths", "largest_trade_price", "high", "low", "last",
	"bid", "ask", "bid_size", "ask_size", "median", "mean", "mode", "buy", "sell",
	"largest_trade_size", "mode_count", "vol_at_ask", "vol_no_change", "vol_at_bid",
	"bid_up_ticks", "bid_down_ticks", "sale_count",
	"atr", "cci", "ema", "kama", "rsi", "sma", "sarext", "macd", "bbands",
}

const (
	calendarSlots = 10
	// HeaderIndexReadings is the number of index values copied into the header.
	HeaderIndexReadings = 16
	// MinHeaderSlots covers the id, the calendar block and the index readings.
	MinHeaderSlots = 1 + calendarSlots + HeaderIndexReadings

	DefaultHeaderSlots = 32
	DefaultIndexCount  = 7
)

var ErrRecordSize = errors.New("brief record size mismatch")

// Layout fixes the shape of a brief for one deployment.
type Layout struct {
	Symbols     int
	Indexes     int
	HeaderSlots int
}

func (l Layout) Validate() error {
	if l.Symbols < 1 || l.Symbols+l.Indexes > 256 {
		return fmt.Errorf("layout: %d symbols and %d indexes do not fit one-byte ids", l.Symbols, l.Indexes)
	}
	if l.HeaderSlots < MinHeaderSlots {
		return fmt.Errorf("layout: header needs at least %d slots, got %d", MinHeaderSlots, l.HeaderSlots)
	}
	return nil
}

// RecordSize is the exact byte length of an encoded brief.
func (l Layout) RecordSize() int {
	return (l.HeaderSlots + l.Symbols*SymbolFieldCount) * 4
}

// Resolve classifies a tick id as a symbol or an index position.
func (l Layout) Resolve(id uint8) (n int, isIndex bool, ok bool) {
	switch v := int(id); {
	case v < l.Symbols:
		return v, false, true
	case v < l.Symbols+l.Indexes:
		return v - l.Symbols, true, true
	default:
		return 0, false, false
	}
}
