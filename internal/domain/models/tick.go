package models

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// TickKind identifies which quote field a tick updates.
type TickKind uint8

const (
	TickBidSize TickKind = iota
	TickBid
	TickAsk
	TickAskSize
	TickLast
	TickLastSize
	TickHigh
	TickLow
	TickVolume
	TickClose

	// TickKindCount is the number of kinds tracked per index.
	TickKindCount = 10

	// TickNone marks that no tick has been applied yet.
	TickNone TickKind = 0xFF
)

var tickKindNames = [TickKindCount]string{
	"bidSz", "bid", "ask", "askSz", "last", "lastSz", "high", "low", "volume", "close",
}

func (k TickKind) String() string {
	if int(k) < len(tickKindNames) {
		return tickKindNames[k]
	}
	if k == TickNone {
		return "none"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

const (
	batchHeaderSize = 8
	tickRecordSize  = 7
)

var (
	ErrBatchTooShort   = errors.New("tick batch too short")
	ErrUnknownTickKind = errors.New("unknown tick kind")
)

// Tick is one update to a symbol or index.
type Tick struct {
	Fraction uint8
	Kind     TickKind
	ID       uint8
	Value    float32
}

// TickBatch is the set of ticks observed during one second.
type TickBatch struct {
	Time  time.Time
	Ticks []Tick

	// Trailing counts bytes after the last complete record.
	Trailing int
	// Dropped counts records whose id is outside the universe.
	Dropped int
}

// ParseTickBatch decodes an 8+7n byte buffer. Records with ids outside
// the layout are dropped; an incomplete trailing record is ignored.
func ParseTickBatch(raw []byte, layout Layout) (TickBatch, error) {
	if len(raw) <= batchHeaderSize {
		return TickBatch{}, fmt.Errorf("%w: %d bytes", ErrBatchTooShort, len(raw))
	}

	ns := int64(binary.LittleEndian.Uint64(raw[:batchHeaderSize]))
	body := raw[batchHeaderSize:]
	n := len(body) / tickRecordSize

	b := TickBatch{
		Time:     time.Unix(0, ns).UTC(),
		Ticks:    make([]Tick, 0, n),
		Trailing: len(body) % tickRecordSize,
	}
	limit := layout.Symbols + layout.Indexes
	for i := 0; i < n; i++ {
		rec := body[i*tickRecordSize : (i+1)*tickRecordSize]
		if int(rec[2]) >= limit {
			b.Dropped++
			continue
		}
		b.Ticks = append(b.Ticks, Tick{
			Fraction: rec[0],
			Kind:     TickKind(rec[1]),
			ID:       rec[2],
			Value:    math.Float32frombits(binary.LittleEndian.Uint32(rec[3:])),
		})
	}
	return b, nil
}

// Encode writes the batch in the 8+7n wire format.
func (b TickBatch) Encode() []byte {
	out := make([]byte, batchHeaderSize+len(b.Ticks)*tickRecordSize)
	binary.LittleEndian.PutUint64(out, uint64(b.Time.UnixNano()))
	off := batchHeaderSize
	for _, t := range b.Ticks {
		out[off] = t.Fraction
		out[off+1] = byte(t.Kind)
		out[off+2] = t.ID
		binary.LittleEndian.PutUint32(out[off+3:], math.Float32bits(t.Value))
		off += tickRecordSize
	}
	return out
}

// StreamMoment is a persisted raw tick batch keyed by its capture time.
type StreamMoment struct {
	Time time.Time
	Data []byte
}
