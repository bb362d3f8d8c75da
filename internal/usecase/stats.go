package usecase

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

// PriceStats summarizes the trade prices of one window.
type PriceStats struct {
	Median    float32
	Mean      float32
	Mode      float32
	ModeCount float32
}

// MedianMeanMode summarizes a small sample. def is reported for every value
// when prices is empty. Two different prices report the first one as mode.
// From three prices on, the mode is the first longest run of equal prices in
// sorted order and falls back to the median when no price repeats.
func MedianMeanMode(prices []float32, def float32) PriceStats {
	switch len(prices) {
	case 0:
		return PriceStats{Median: def, Mean: def, Mode: def}
	case 1:
		return PriceStats{Median: prices[0], Mean: prices[0], Mode: prices[0], ModeCount: 1}
	case 2:
		mid := (prices[0] + prices[1]) / 2
		if prices[0] == prices[1] {
			return PriceStats{Median: mid, Mean: mid, Mode: prices[0], ModeCount: 2}
		}
		return PriceStats{Median: mid, Mean: mid, Mode: prices[0], ModeCount: 1}
	}

	sorted := make([]float64, len(prices))
	for i, p := range prices {
		sorted[i] = float64(p)
	}
	slices.Sort(sorted)

	var median float64
	if n := len(sorted); n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	mode, best, run := sorted[0], 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			run++
		} else {
			run = 1
		}
		if run > best {
			best, mode = run, sorted[i]
		}
	}
	if best <= 1 {
		mode = median
	}

	return PriceStats{
		Median:    float32(median),
		Mean:      float32(stat.Mean(sorted, nil)),
		Mode:      float32(mode),
		ModeCount: float32(best),
	}
}
