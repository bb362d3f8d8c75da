package indicators

import (
	"context"
	"fmt"
	"time"

	"BriefMaker/internal/domain/models"
	"BriefMaker/internal/domain/service"
)

const computePath = "/v1/indicators"

type seriesPayload struct {
	High   []float32 `json:"high"`
	Low    []float32 `json:"low"`
	Close  []float32 `json:"close"`
	Volume []float32 `json:"volume"`
}

type computeRequest struct {
	Indicators []string        `json:"indicators"`
	Symbols    []seriesPayload `json:"symbols"`
}

type computeResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// IndicatorNames is the order of values in every returned vector.
var IndicatorNames = [models.IndicatorCount]string{
	"ATR", "CCI", "EMA", "KAMA", "RSI", "SMA", "SAREXT", "MACD", "BBANDS",
}

// HTTPEngine asks an external technical-analysis service for the indicator
// vectors.
type HTTPEngine struct {
	*HTTPServiceBase
	attempts int
}

func NewHTTPEngine(baseURL string, timeout time.Duration, attempts int) *HTTPEngine {
	return &HTTPEngine{HTTPServiceBase: NewHTTPServiceBase(baseURL, timeout), attempts: attempts}
}

func (e *HTTPEngine) Compute(ctx context.Context, history [][]models.Bar) ([][models.IndicatorCount]float32, error) {
	req := computeRequest{
		Indicators: IndicatorNames[:],
		Symbols:    make([]seriesPayload, len(history)),
	}
	for i, bars := range history {
		p := seriesPayload{
			High:   make([]float32, len(bars)),
			Low:    make([]float32, len(bars)),
			Close:  make([]float32, len(bars)),
			Volume: make([]float32, len(bars)),
		}
		for j, b := range bars {
			p.High[j], p.Low[j], p.Close[j], p.Volume[j] = b.High, b.Low, b.Close, b.Volume
		}
		req.Symbols[i] = p
	}

	var resp computeResponse
	if err := e.PostJSONWithRetry(ctx, computePath, req, &resp, e.attempts); err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(history) {
		return nil, fmt.Errorf("indicator service returned %d vectors for %d symbols", len(resp.Vectors), len(history))
	}
	out := make([][models.IndicatorCount]float32, len(resp.Vectors))
	for i, v := range resp.Vectors {
		if len(v) != models.IndicatorCount {
			return nil, fmt.Errorf("indicator vector %d has %d values, want %d", i, len(v), models.IndicatorCount)
		}
		copy(out[i][:], v)
	}
	return out, nil
}

// ZeroEngine is used when no indicator service is configured. Every slot
// stays zero.
type ZeroEngine struct{}

func (ZeroEngine) Compute(_ context.Context, history [][]models.Bar) ([][models.IndicatorCount]float32, error) {
	return make([][models.IndicatorCount]float32, len(history)), nil
}

var (
	_ service.IndicatorEngine = (*HTTPEngine)(nil)
	_ service.IndicatorEngine = ZeroEngine{}
)
