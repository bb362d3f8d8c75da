package usecase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BriefMaker/internal/domain/models"
)

func TestWindowStoreFlipSwapsSides(t *testing.T) {
	s := NewWindowStore(1)
	s.WithCapturing(func(rec *models.WindowRecord) { rec.Symbols[0].Last = 10 })

	s.Flip()

	s.WithProcessing(func(rec *models.WindowRecord) {
		assert.Equal(t, float32(10), rec.Symbols[0].Last)
	})
	s.WithCapturing(func(rec *models.WindowRecord) {
		assert.Equal(t, float32(0), rec.Symbols[0].Last)
	})
}

func TestWindowStoreFlipWithCarriesIntoNextWindow(t *testing.T) {
	s := NewWindowStore(1)
	s.WithCapturing(func(rec *models.WindowRecord) {
		sym := &rec.Symbols[0]
		sym.Last, sym.Bid, sym.Ask, sym.VolumeDay = 10, 9.99, 10.01, 5000
		sym.VolumeThis, sym.SaleCount = 300, 3
		sym.Prices = append(sym.Prices, 10, 10.01)
	})

	s.FlipWith(startNextWindow)

	s.WithCapturing(func(rec *models.WindowRecord) {
		sym := rec.Symbols[0]
		assert.Equal(t, float32(10), sym.Last)
		assert.Equal(t, float32(9.99), sym.Bid)
		assert.Equal(t, float32(5000), sym.VolumeDay)
		assert.Equal(t, float32(10), sym.High)
		assert.Equal(t, float32(10), sym.Low)
		assert.Equal(t, float32(10), sym.LargestTradePrice)
		assert.Zero(t, sym.VolumeThis)
		assert.Zero(t, sym.SaleCount)
		assert.Empty(t, sym.Prices)
	})
	s.WithProcessing(func(rec *models.WindowRecord) {
		assert.Equal(t, float32(300), rec.Symbols[0].VolumeThis)
		assert.Len(t, rec.Symbols[0].Prices, 2)
	})
}

func TestWindowStoreConcurrentWritesSurviveFlips(t *testing.T) {
	s := NewWindowStore(1)
	const writers, perWriter, flips = 8, 500, 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.WithCapturing(func(rec *models.WindowRecord) { rec.Symbols[0].SaleCount++ })
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < flips; i++ {
			s.Flip()
		}
	}()
	wg.Wait()
	<-done

	var total float32
	s.WithCapturing(func(rec *models.WindowRecord) { total += rec.Symbols[0].SaleCount })
	s.WithProcessing(func(rec *models.WindowRecord) { total += rec.Symbols[0].SaleCount })
	require.Equal(t, float32(writers*perWriter), total)
}

func TestWindowStoreSeedKeepsCarriedFields(t *testing.T) {
	s := NewWindowStore(1)
	src := models.NewSymbolAttributes()
	src.Last, src.Buy, src.VolumeThis = 12, -12.01, 900
	s.Seed([]models.SymbolAttributes{src})

	for _, with := range []func(func(*models.WindowRecord)){s.WithCapturing, s.WithProcessing} {
		with(func(rec *models.WindowRecord) {
			assert.Equal(t, float32(12), rec.Symbols[0].Last)
			assert.Equal(t, float32(-12.01), rec.Symbols[0].Buy)
			assert.Zero(t, rec.Symbols[0].VolumeThis)
		})
	}
}
