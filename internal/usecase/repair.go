package usecase

import (
	"fmt"
	"strings"

	"BriefMaker/internal/domain/models"
)

// RepairConfig holds the calibration constants used when finalizing a window.
type RepairConfig struct {
	PriceMin        float32
	PriceMax        float32
	SyntheticOffset float32
	QuoteStep       float32
	MinQuoteGap     float32
	HalfGap         float32
	MissingSpread   float32
	BandPct         float32
	BandAbs         float32
	MaxWaitingLoops int
	RangeWarnings   bool
}

func DefaultRepairConfig() RepairConfig {
	return RepairConfig{
		PriceMin:        0.03,
		PriceMax:        2000,
		SyntheticOffset: 0.005,
		QuoteStep:       0.01,
		MinQuoteGap:     0.005,
		HalfGap:         0.0025,
		MissingSpread:   0.997,
		BandPct:         0.01,
		BandAbs:         0.01,
		MaxWaitingLoops: 200,
		RangeWarnings:   true,
	}
}

type fieldRange struct {
	field    int
	min, max float32
}

// rangeLimits are the advisory bounds checked when range warnings are on.
var rangeLimits = []fieldRange{
	{models.FieldLast, 0.02, 2000},
	{models.FieldBuy, -2000, 2000},
	{models.FieldSell, -2000, 2000},
	{models.FieldModeCount, 0, 100},
	{models.FieldVolAtAsk, 0, 100},
	{models.FieldVolNoChange, 0, 100},
	{models.FieldVolAtBid, 0, 100},
	{models.FieldVolumeDay, 1, 9999999},
	{models.FieldVolumeThis, 0, 999999},
	{models.FieldLargestTradePrice, 0.02, 2000},
	{models.FieldHigh, 0.02, 2000},
	{models.FieldLow, 0.02, 2000},
	{models.FieldBid, 0.02, 2000},
	{models.FieldAsk, 0.02, 2000},
	{models.FieldBidSize, 0, 500000},
	{models.FieldAskSize, 0, 500000},
	{models.FieldMedian, 0.02, 2000},
	{models.FieldMean, 0.02, 2000},
	{models.FieldMode, 0.02, 2000},
	{models.FieldLargestTradeSize, 0, 999999},
}

// rangeViolations describes every out-of-range field of s, or "" when none.
func rangeViolations(s *models.SymbolAttributes, ticker string) string {
	f := s.Fields()
	var sb strings.Builder
	for _, r := range rangeLimits {
		v := f[r.field]
		switch {
		case v < r.min:
			fmt.Fprintf(&sb, "%s %s=%g below %g; ", ticker, models.FieldNames[r.field], v, r.min)
		case v > r.max:
			fmt.Fprintf(&sb, "%s %s=%g above %g; ", ticker, models.FieldNames[r.field], v, r.max)
		}
	}
	return sb.String()
}

func (c RepairConfig) inRange(v float32) bool {
	return v > c.PriceMin && v < c.PriceMax
}

// syntheticLast picks the best available stand-in for the last trade price.
func (c RepairConfig) syntheticLast(s *models.SymbolAttributes) (float32, bool) {
	switch {
	case c.inRange(s.Last):
		return s.Last, true
	case c.inRange(s.Ask):
		return s.Ask - c.SyntheticOffset, true
	case c.inRange(s.Bid):
		return s.Bid + c.SyntheticOffset, true
	default:
		return 0, false
	}
}

// quotes derives the buy and sell guesses. A negative stored sell is kept
// as is when its magnitude is plausible.
func (c RepairConfig) quotes(s *models.SymbolAttributes, last float32) (buy, sell float32) {
	buyAbs, sellAbs := abs32(s.Buy), abs32(s.Sell)
	switch {
	case c.inRange(buyAbs):
		buy = buyAbs
	case c.inRange(sellAbs):
		buy = sellAbs + c.QuoteStep
	default:
		buy = last + c.SyntheticOffset
	}

	if c.inRange(sellAbs) {
		sell = s.Sell
	} else {
		sell = buy - c.QuoteStep
	}

	if buy-sell < c.MinQuoteGap {
		mid := (buy + sell) / 2
		buy, sell = mid+c.HalfGap, mid-c.HalfGap
	}
	return buy, sell
}

// repairSymbol applies the synthetic last, quote guesses and bid/ask
// repairs to s in place.
func (c RepairConfig) repairSymbol(s *models.SymbolAttributes, last float32) {
	s.Buy, s.Sell = c.quotes(s, last)
	s.Last = last

	s.High = max(last, s.High)
	if s.Low > c.PriceMin {
		s.Low = min(last, s.Low)
	} else {
		s.Low = last
	}

	if s.Bid < c.PriceMin {
		ref := s.Last
		if s.Ask >= c.PriceMin {
			ref = s.Ask
		}
		s.Bid = ref * c.MissingSpread
	}
	if s.Ask < c.PriceMin {
		s.Ask = s.Bid * c.MissingSpread
	}
	if s.Bid > s.Ask {
		mid := (s.Bid + s.Ask) / 2
		s.Bid, s.Ask = mid, mid
	}

	if floor := last*(1-c.BandPct) - c.BandAbs; s.Ask < floor {
		s.Ask = floor
	}
	if ceil := last*(1+c.BandPct) + c.BandAbs; s.Bid <= c.PriceMin {
		s.Bid = last
	} else if s.Bid > ceil {
		s.Bid = ceil
	}

	for _, p := range []*float32{&s.LargestTradePrice, &s.Median, &s.Mean, &s.Mode} {
		if *p < c.PriceMin || *p > c.PriceMax {
			*p = last
		}
	}
}

// gateFields is a bit set of the fields startup gating waits on.
type gateFields uint8

const (
	gateVolumeDay gateFields = 1 << iota
	gateVolumeThis
	gateAsk
	gateBid
	gateBidSize
	gateAskSize
	gateLast

	allGateFields = gateVolumeDay | gateVolumeThis | gateAsk | gateBid | gateBidSize | gateAskSize | gateLast
)

var gateFieldNames = []string{"volume_day", "volume_ths", "ask", "bid", "bid_size", "ask_size", "last"}

func (g gateFields) String() string {
	var names []string
	for i, n := range gateFieldNames {
		if g&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, ",")
}

// presentGateFields reports which gated fields of s hold a usable value.
func presentGateFields(s *models.SymbolAttributes) gateFields {
	var g gateFields
	if s.VolumeDay > 1 {
		g |= gateVolumeDay
	}
	if s.VolumeThis > 1 {
		g |= gateVolumeThis
	}
	if s.Ask > 0.01 {
		g |= gateAsk
	}
	if s.Bid > 0.01 {
		g |= gateBid
	}
	if s.BidSize > 1 {
		g |= gateBidSize
	}
	if s.AskSize > 1 {
		g |= gateAskSize
	}
	if s.Last > 0.01 {
		g |= gateLast
	}
	return g
}

// forceFill substitutes missing startup values from whatever is present.
func forceFill(s *models.SymbolAttributes) {
	if s.Last < 0.01 {
		s.Last = s.Bid
	}
	if s.Ask < 0.01 {
		s.Ask = s.Last
	}
	if s.Bid < 0.01 {
		s.Bid = s.Last
	}
	if s.BidSize < 1 {
		s.BidSize = s.Last
	}
	if s.AskSize < 1 {
		s.AskSize = s.Last
	}
	if s.Buy < 0.01 {
		s.Buy = s.Last
	}
	if s.Sell < 0.01 {
		s.Sell = s.Last
	}
}
