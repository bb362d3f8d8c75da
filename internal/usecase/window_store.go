package usecase

import (
	"sync"
	"sync/atomic"

	"BriefMaker/internal/domain/models"
)

type storeSide struct {
	mu  sync.Mutex
	rec *models.WindowRecord
}

// WindowStore double-buffers window records. One side captures ticks while
// the other is finalized; Flip swaps the roles.
//
// Side locks are only reachable through WithCapturing and WithProcessing, so
// no caller can hold one across a Flip.
type WindowStore struct {
	sides     [2]storeSide
	capturing atomic.Int32
}

func NewWindowStore(symbols int) *WindowStore {
	s := &WindowStore{}
	s.sides[0].rec = models.NewWindowRecord(symbols)
	s.sides[1].rec = models.NewWindowRecord(symbols)
	return s
}

// WithCapturing runs fn while holding the capturing side's lock.
func (s *WindowStore) WithCapturing(fn func(rec *models.WindowRecord)) {
	s.with(func() int32 { return s.capturing.Load() }, fn)
}

// WithProcessing runs fn while holding the processing side's lock.
func (s *WindowStore) WithProcessing(fn func(rec *models.WindowRecord)) {
	s.with(func() int32 { return 1 - s.capturing.Load() }, fn)
}

func (s *WindowStore) with(label func() int32, fn func(rec *models.WindowRecord)) {
	for {
		i := label()
		side := &s.sides[i]
		side.mu.Lock()
		// a flip may have moved the label while we waited
		if label() != i {
			side.mu.Unlock()
			continue
		}
		func() {
			defer side.mu.Unlock()
			fn(side.rec)
		}()
		return
	}
}

// Flip swaps capturing and processing.
func (s *WindowStore) Flip() {
	s.FlipWith(nil)
}

// FlipWith locks the capturing side then the processing side, calls prepare
// with both records, swaps the roles and unlocks in reverse order. prepare
// sees the outgoing capturing record and the record that will capture next.
// Flip must not be called concurrently with itself.
func (s *WindowStore) FlipWith(prepare func(capturing, next *models.WindowRecord)) {
	c := s.capturing.Load()
	cur, nxt := &s.sides[c], &s.sides[1-c]

	cur.mu.Lock()
	defer cur.mu.Unlock()
	nxt.mu.Lock()
	defer nxt.mu.Unlock()

	if prepare != nil {
		prepare(cur.rec, nxt.rec)
	}
	s.capturing.Store(1 - c)
}

// Seed loads carried fields into both sides.
func (s *WindowStore) Seed(symbols []models.SymbolAttributes) {
	for i := range s.sides {
		side := &s.sides[i]
		side.mu.Lock()
		for j := range side.rec.Symbols {
			if j < len(symbols) {
				side.rec.Symbols[j].SeedFrom(&symbols[j])
			}
		}
		side.mu.Unlock()
	}
}

// startNextWindow is the prepare step used at every window boundary.
func startNextWindow(capturing, next *models.WindowRecord) {
	for i := range next.Symbols {
		next.Symbols[i].StartWindow(&capturing.Symbols[i])
	}
}
