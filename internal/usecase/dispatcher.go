package usecase

import (
	"fmt"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/service/ratelimit"
	xlogger "BriefMaker/pkg/logger"
)

// TickDispatcher applies tick updates to the capturing side of the store and
// to the index board.
type TickDispatcher struct {
	store   *WindowStore
	indexes *models.IndexBoard
	layout  models.Layout
	metrics domrepo.Metrics
	logger  *xlogger.Logger
	limiter *ratelimit.Limiter
}

func NewTickDispatcher(
	store *WindowStore,
	indexes *models.IndexBoard,
	layout models.Layout,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	limiter *ratelimit.Limiter,
) *TickDispatcher {
	return &TickDispatcher{
		store:   store,
		indexes: indexes,
		layout:  layout,
		metrics: metrics,
		logger:  logger,
		limiter: limiter,
	}
}

// Apply routes one symbol tick. Unknown kinds leave the record untouched.
func (d *TickDispatcher) Apply(symbol int, kind models.TickKind, v float32) error {
	if symbol < 0 || symbol >= d.layout.Symbols {
		return fmt.Errorf("symbol %d out of range", symbol)
	}
	var err error
	d.store.WithCapturing(func(rec *models.WindowRecord) {
		err = applyTick(&rec.Symbols[symbol], kind, v)
	})
	if err != nil && d.limiter.Allow("unknown_tick_kind") {
		d.logger.Debug("unrecognized tick kind",
			xlogger.Int("symbol", symbol),
			xlogger.String("kind", kind.String()),
		)
	}
	return err
}

// ApplyBatch dispatches every tick of b and returns how many were applied.
func (d *TickDispatcher) ApplyBatch(b models.TickBatch) int {
	var perKind [models.TickKindCount]int
	applied, unknown := 0, 0
	for _, t := range b.Ticks {
		n, isIndex, ok := d.layout.Resolve(t.ID)
		if !ok {
			continue
		}
		if isIndex {
			if !d.indexes.Apply(n, t.Kind, t.Value) {
				unknown++
				continue
			}
		} else if err := d.Apply(n, t.Kind, t.Value); err != nil {
			unknown++
			continue
		}
		applied++
		perKind[t.Kind]++
	}
	for k, n := range perKind {
		if n > 0 {
			d.metrics.RecordTicks(models.TickKind(k).String(), n)
		}
	}
	if dropped := unknown + b.Dropped; dropped > 0 {
		d.metrics.RecordDropped("tick", dropped)
	}
	return applied
}

// Solidify marks the quote guesses of every symbol as unconfirmed: buy
// takes the negated ask, sell the negated bid.
func (d *TickDispatcher) Solidify() {
	d.store.WithCapturing(func(rec *models.WindowRecord) {
		for i := range rec.Symbols {
			s := &rec.Symbols[i]
			s.Sell = -s.Bid
			s.Buy = -s.Ask
		}
	})
}

func applyTick(s *models.SymbolAttributes, kind models.TickKind, v float32) error {
	switch kind {
	case models.TickBidSize:
		switch {
		case v > s.BidSize:
			s.BidUpTicks++
		case v < s.BidSize:
			s.BidDownTicks++
		}
		s.BidSize = v
	case models.TickBid:
		if v < s.Bid {
			s.Buy = abs32(s.Buy)
		}
		s.Bid = v
	case models.TickAsk:
		if v > s.Ask {
			s.Sell = abs32(s.Sell)
		}
		s.Ask = v
	case models.TickAskSize:
		s.AskSize = v
	case models.TickLast:
		s.High = max(s.High, v)
		if s.Low == 0 || v < s.Low {
			s.Low = v
		}
		s.Last = v
	case models.TickLastSize:
		if s.LastVolumeKind == models.TickLastSize {
			// same trade reported twice
			break
		}
		switch {
		case s.Ask <= s.Last:
			s.VolAtAsk += v
		case s.Bid >= s.Last:
			s.VolAtBid += v
		}
		if s.LastTickKind != models.TickLast {
			s.VolNoChange += v
		}
		// sizes carry no price; the trade is priced at the latest last,
		// which may be from an earlier window when none printed in this one
		if v > s.LargestTradeSize {
			s.LargestTradeSize = v
			s.LargestTradePrice = s.Last
		}
		s.SaleCount++
		s.VolumeThis += v
		s.Prices = append(s.Prices, s.Last)
		s.LastVolumeKind = models.TickLastSize
	case models.TickVolume:
		s.VolumeDay = v
		s.LastVolumeKind = models.TickVolume
	default:
		return fmt.Errorf("%w: %d", models.ErrUnknownTickKind, kind)
	}
	s.LastTickKind = kind
	return nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
