// Package tinytime maps civil trading times onto a dense tick counter that
// skips weekends and the hours outside the trading session.
package tinytime

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrOutOfDomain is returned when a calendar time falls on a weekend, outside
// the session, or before the epoch.
var ErrOutOfDomain = errors.New("tinytime: time outside trading calendar")

// TinyTime counts fixed-width ticks since the epoch, business hours only.
type TinyTime uint32

// Option configures Codec.
type Option func(*Codec)

// Codec converts between civil time and TinyTime. It is immutable after New
// and safe for concurrent use.
type Codec struct {
	loc        *time.Location
	epoch      time.Time
	start      time.Duration
	end        time.Duration
	resolution time.Duration

	epochDay    int64
	epochOffset int64
	ticksPerDay uint32
}

// WithEpoch sets the first calendar day of the counter. Only the date is used.
func WithEpoch(t time.Time) Option {
	return func(c *Codec) {
		c.epoch = t
	}
}

// WithSession sets the daily trading window as offsets from midnight.
func WithSession(start, end time.Duration) Option {
	return func(c *Codec) {
		c.start = start
		c.end = end
	}
}

// WithResolution sets the tick width.
func WithResolution(d time.Duration) Option {
	return func(c *Codec) {
		c.resolution = d
	}
}

// WithLocation sets the civil time zone of the session.
func WithLocation(loc *time.Location) Option {
	return func(c *Codec) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// New builds a codec. Defaults: epoch 2010-01-01, session 06:00-14:00 UTC,
// 6 second ticks.
func New(opts ...Option) (*Codec, error) {
	c := &Codec{
		loc:        time.UTC,
		epoch:      time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC),
		start:      6 * time.Hour,
		end:        14 * time.Hour,
		resolution: 6 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.resolution <= 0 || c.resolution%time.Second != 0 {
		return nil, fmt.Errorf("tinytime: resolution must be a positive whole number of seconds, got %s", c.resolution)
	}
	if c.start < 0 || c.end > 24*time.Hour || c.end <= c.start {
		return nil, fmt.Errorf("tinytime: invalid session %s-%s", c.start, c.end)
	}
	if (c.end-c.start)%c.resolution != 0 {
		return nil, fmt.Errorf("tinytime: session length %s is not a multiple of %s", c.end-c.start, c.resolution)
	}

	y, m, d := c.epoch.Date()
	c.epoch = time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	c.epochDay = dayNumber(c.epoch)
	c.epochOffset = mondayOffset(c.epoch.Weekday())
	c.ticksPerDay = uint32((c.end - c.start) / c.resolution)
	return c, nil
}

// Location returns the session time zone.
func (c *Codec) Location() *time.Location { return c.loc }

// Session returns the trading window as offsets from midnight.
func (c *Codec) Session() (start, end time.Duration) { return c.start, c.end }

// Resolution returns the tick width.
func (c *Codec) Resolution() time.Duration { return c.resolution }

// TicksPerDay returns the number of ticks in one trading day.
func (c *Codec) TicksPerDay() uint32 { return c.ticksPerDay }

// IsValid reports whether t is inside the session on a weekday at or after the epoch.
func (c *Codec) IsValid(t time.Time) bool {
	t = t.In(c.loc)
	if mondayOffset(t.Weekday()) >= 5 {
		return false
	}
	if dayNumber(t) < c.epochDay {
		return false
	}
	tod := timeOfDay(t)
	return tod >= c.start && tod < c.end
}

// Encode maps t onto its tick. Times inside a tick round down.
func (c *Codec) Encode(t time.Time) (TinyTime, error) {
	if !c.IsValid(t) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfDomain, t.In(c.loc).Format(time.RFC3339))
	}
	t = t.In(c.loc)
	slot := uint64((timeOfDay(t) - c.start) / c.resolution)
	return c.pack(c.businessDay(dayNumber(t)), slot)
}

// Floor is the lenient form of Encode: a time outside the session maps to the
// last tick of the same trading day, or of the prior one when it falls before
// the open or on a weekend.
func (c *Codec) Floor(t time.Time) (TinyTime, error) {
	if c.IsValid(t) {
		return c.Encode(t)
	}
	t = t.In(c.loc)
	day := dayNumber(t)
	wd := mondayOffset(t.Weekday())
	switch {
	case wd >= 5:
		day -= wd - 4
	case timeOfDay(t) < c.start:
		day--
		if prev := (wd + 6) % 7; prev >= 5 {
			day -= prev - 4
		}
	}
	if day < c.epochDay {
		return 0, fmt.Errorf("%w: %s is before the epoch", ErrOutOfDomain, t.Format(time.RFC3339))
	}
	return c.pack(c.businessDay(day), uint64(c.ticksPerDay-1))
}

// Decode returns the civil start time of tt.
func (c *Codec) Decode(tt TinyTime) time.Time {
	biz := int64(tt / TinyTime(c.ticksPerDay))
	slot := time.Duration(tt % TinyTime(c.ticksPerDay))
	day := c.calendarDay(biz)

	y, m, d := time.Unix(day*86400, 0).UTC().Date()
	tod := c.start + slot*c.resolution
	h := int(tod / time.Hour)
	mi := int(tod % time.Hour / time.Minute)
	s := int(tod % time.Minute / time.Second)
	return time.Date(y, m, d, h, mi, s, 0, c.loc)
}

func (c *Codec) pack(biz int64, slot uint64) (TinyTime, error) {
	v := uint64(biz)*uint64(c.ticksPerDay) + slot
	if biz < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: tick %d overflows", ErrOutOfDomain, v)
	}
	return TinyTime(v), nil
}

// businessDay counts weekdays between the epoch and day. Days are numbered
// from the Monday on or before the epoch so that weeks line up.
func (c *Codec) businessDay(day int64) int64 {
	n := day - c.epochDay + c.epochOffset
	return weekdaysIn(n) - weekdaysIn(c.epochOffset)
}

func (c *Codec) calendarDay(biz int64) int64 {
	b := biz + weekdaysIn(c.epochOffset)
	n := (b/5)*7 + b%5
	return c.epochDay - c.epochOffset + n
}

// weekdaysIn returns how many weekdays lie in the first n days of a Monday-aligned week run.
func weekdaysIn(n int64) int64 {
	return (n/7)*5 + min(n%7, 5)
}

func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func mondayOffset(wd time.Weekday) int64 {
	return int64((wd + 6) % 7)
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}
