package main

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"BriefMaker/internal/domain/models"
)

// Row is one symbol of one brief.
type Row struct {
	ID                uint32  `csv:"id"`
	Time              string  `csv:"time"`
	Symbol            string  `csv:"symbol"`
	Last              float32 `csv:"last"`
	Bid               float32 `csv:"bid"`
	Ask               float32 `csv:"ask"`
	BidSize           float32 `csv:"bid_size"`
	AskSize           float32 `csv:"ask_size"`
	High              float32 `csv:"high"`
	Low               float32 `csv:"low"`
	VolumeDay         float32 `csv:"volume_day"`
	VolumeThis        float32 `csv:"volume_ths"`
	LargestTradePrice float32 `csv:"largest_trade_price"`
	LargestTradeSize  float32 `csv:"largest_trade_size"`
	Median            float32 `csv:"median"`
	Mean              float32 `csv:"mean"`
	Mode              float32 `csv:"mode"`
	ModeCount         float32 `csv:"mode_count"`
	Buy               float32 `csv:"buy"`
	Sell              float32 `csv:"sell"`
	VolAtAsk          float32 `csv:"vol_at_ask"`
	VolNoChange       float32 `csv:"vol_no_change"`
	VolAtBid          float32 `csv:"vol_at_bid"`
	BidUpTicks        float32 `csv:"bid_up_ticks"`
	BidDownTicks      float32 `csv:"bid_down_ticks"`
	SaleCount         float32 `csv:"sale_count"`
}

// Rows flattens decoded briefs into one row per symbol. When only is set,
// other symbols are left out.
func Rows(layout models.Layout, tickers []string, briefs []models.Brief, at func(uint32) time.Time, only string) ([]Row, error) {
	var rows []Row
	for _, b := range briefs {
		d, err := models.DecodeBrief(layout, b.Bytes)
		if err != nil {
			return nil, fmt.Errorf("brief %d: %w", b.ID, err)
		}
		ts := at(b.ID).Format(time.RFC3339)
		for i, s := range d.Symbols {
			name := fmt.Sprintf("sym%d", i)
			if i < len(tickers) {
				name = tickers[i]
			}
			if only != "" && name != only {
				continue
			}
			rows = append(rows, Row{
				ID:                b.ID,
				Time:              ts,
				Symbol:            name,
				Last:              s.Last,
				Bid:               s.Bid,
				Ask:               s.Ask,
				BidSize:           s.BidSize,
				AskSize:           s.AskSize,
				High:              s.High,
				Low:               s.Low,
				VolumeDay:         s.VolumeDay,
				VolumeThis:        s.VolumeThis,
				LargestTradePrice: s.LargestTradePrice,
				LargestTradeSize:  s.LargestTradeSize,
				Median:            s.Median,
				Mean:              s.Mean,
				Mode:              s.Mode,
				ModeCount:         s.ModeCount,
				Buy:               s.Buy,
				Sell:              s.Sell,
				VolAtAsk:          s.VolAtAsk,
				VolNoChange:       s.VolNoChange,
				VolAtBid:          s.VolAtBid,
				BidUpTicks:        s.BidUpTicks,
				BidDownTicks:      s.BidDownTicks,
				SaleCount:         s.SaleCount,
			})
		}
	}
	return rows, nil
}

func WriteCSV(w io.Writer, rows []Row) error {
	return gocsv.Marshal(rows, w)
}
