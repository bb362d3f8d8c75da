package tinytime

import (
	"errors"
	"testing"
	"time"
)

func mustCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestEncodeEpochAndMonday(t *testing.T) {
	c := mustCodec(t)

	got, err := c.Encode(time.Date(2010, 1, 1, 6, 0, 0, 0, time.UTC))
	if err != nil || got != 0 {
		t.Fatalf("epoch open: got %d err %v", got, err)
	}
	got, err = c.Encode(time.Date(2010, 1, 4, 6, 0, 0, 0, time.UTC))
	if err != nil || got != 4800 {
		t.Fatalf("first monday: got %d err %v", got, err)
	}
	got, err = c.Encode(time.Date(2010, 1, 1, 13, 59, 59, 0, time.UTC))
	if err != nil || got != 4799 {
		t.Fatalf("epoch close: got %d err %v", got, err)
	}
}

func TestRoundTripEveryTick(t *testing.T) {
	c := mustCodec(t)
	day := time.Date(2023, 3, 9, 0, 0, 0, 0, time.UTC) // Thursday
	for d := 0; d < 7; d++ {
		date := day.AddDate(0, 0, d)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for ts := date.Add(6 * time.Hour); ts.Before(date.Add(14 * time.Hour)); ts = ts.Add(6 * time.Second) {
			tt, err := c.Encode(ts.Add(5 * time.Second))
			if err != nil {
				t.Fatalf("encode %v: %v", ts, err)
			}
			if back := c.Decode(tt); !back.Equal(ts) {
				t.Fatalf("round trip %v: got %v", ts, back)
			}
		}
	}
}

func TestEncodeMonotonic(t *testing.T) {
	c := mustCodec(t)
	prev := TinyTime(0)
	start := time.Date(2024, 5, 17, 6, 0, 0, 0, time.UTC) // Friday
	for i := 0; i < 5*24*600; i++ {
		ts := start.Add(time.Duration(i) * 6 * time.Second)
		if !c.IsValid(ts) {
			continue
		}
		tt, err := c.Encode(ts)
		if err != nil {
			t.Fatalf("encode %v: %v", ts, err)
		}
		if prev != 0 && tt != prev+1 {
			t.Fatalf("not dense at %v: prev %d got %d", ts, prev, tt)
		}
		prev = tt
	}
}

func TestEncodeOutOfDomain(t *testing.T) {
	c := mustCodec(t)
	cases := []time.Time{
		time.Date(2024, 5, 18, 10, 0, 0, 0, time.UTC), // Saturday
		time.Date(2024, 5, 19, 10, 0, 0, 0, time.UTC), // Sunday
		time.Date(2024, 5, 20, 5, 59, 59, 0, time.UTC),
		time.Date(2024, 5, 20, 14, 0, 0, 0, time.UTC),
		time.Date(2009, 12, 31, 10, 0, 0, 0, time.UTC),
	}
	for _, ts := range cases {
		if _, err := c.Encode(ts); !errors.Is(err, ErrOutOfDomain) {
			t.Fatalf("expected out of domain for %v, got %v", ts, err)
		}
	}
}

func TestFloorRoundsToPriorTradingTick(t *testing.T) {
	c := mustCodec(t)
	friday, _ := c.Encode(time.Date(2010, 1, 8, 13, 59, 54, 0, time.UTC))
	tuesday, _ := c.Encode(time.Date(2010, 1, 12, 13, 59, 54, 0, time.UTC))

	cases := []struct {
		in   time.Time
		want TinyTime
	}{
		{time.Date(2010, 1, 9, 12, 0, 0, 0, time.UTC), friday},
		{time.Date(2010, 1, 10, 3, 0, 0, 0, time.UTC), friday},
		{time.Date(2010, 1, 11, 5, 0, 0, 0, time.UTC), friday},
		{time.Date(2010, 1, 8, 20, 0, 0, 0, time.UTC), friday},
		{time.Date(2010, 1, 12, 14, 0, 0, 0, time.UTC), tuesday},
	}
	for _, tc := range cases {
		got, err := c.Floor(tc.in)
		if err != nil {
			t.Fatalf("floor %v: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("floor %v: want %d got %d", tc.in, tc.want, got)
		}
	}
	if friday != 5*4800+4799 {
		t.Fatalf("unexpected friday tick %d", friday)
	}

	if _, err := c.Floor(time.Date(2010, 1, 1, 5, 0, 0, 0, time.UTC)); !errors.Is(err, ErrOutOfDomain) {
		t.Fatalf("expected out of domain before epoch, got %v", err)
	}
}

func TestWeekendEpoch(t *testing.T) {
	c := mustCodec(t, WithEpoch(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))) // Saturday
	got, err := c.Encode(time.Date(2022, 1, 3, 6, 0, 0, 0, time.UTC))
	if err != nil || got != 0 {
		t.Fatalf("first weekday after weekend epoch: got %d err %v", got, err)
	}
	if back := c.Decode(0); !back.Equal(time.Date(2022, 1, 3, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("decode 0: %v", back)
	}
}

func TestCustomSessionAndLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	c := mustCodec(t,
		WithLocation(loc),
		WithSession(9*time.Hour+30*time.Minute, 16*time.Hour),
		WithResolution(time.Minute),
	)
	if c.TicksPerDay() != 390 {
		t.Fatalf("ticks per day %d", c.TicksPerDay())
	}
	ts := time.Date(2024, 2, 6, 15, 59, 0, 0, loc)
	tt, err := c.Encode(ts.UTC())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if back := c.Decode(tt); !back.Equal(ts) {
		t.Fatalf("decode: %v", back)
	}
}

func TestNewRejectsBadSession(t *testing.T) {
	if _, err := New(WithSession(6*time.Hour, 14*time.Hour), WithResolution(7*time.Second)); err == nil {
		t.Fatalf("expected error for uneven resolution")
	}
	if _, err := New(WithSession(14*time.Hour, 6*time.Hour)); err == nil {
		t.Fatalf("expected error for inverted session")
	}
}
