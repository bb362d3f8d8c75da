package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestHookChainThreadsDataAndUnwindsAfter(t *testing.T) {
	var order []string
	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before1")
			return ctx, km, append(data, '1'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "after1") },
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before2")
			return ctx, km, append(data, '2'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "after2") },
	}
	chain := NewHookChain(first, nil, second)

	ctx, km, data, err := chain.BeforeHandle(context.Background(), "ticks", kafka.Message{}, []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "x12" {
		t.Fatalf("expected threaded payload x12, got %q", data)
	}
	chain.AfterHandle(ctx, "ticks", km, data, nil)

	want := []string{"before1", "before2", "after2", "after1"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestHookChainRecoversPanic(t *testing.T) {
	notified := 0
	chain := NewHookChain(
		HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { notified++ }},
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		}},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "ticks", kafka.Message{}, nil)
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Code != "ERR_PANIC" {
		t.Fatalf("expected ERR_PANIC hook error, got %v", err)
	}
	if notified != 1 {
		t.Fatalf("expected OnError to be called once, got %d", notified)
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		if d <= 0 || d > 100*time.Millisecond {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}

func TestTimingHookReportsLagAndDuration(t *testing.T) {
	base := time.Date(2024, 3, 4, 6, 30, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(40 * time.Millisecond)}
	now := func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}

	var gotLag, gotTook time.Duration
	var gotErr error
	hook := TimingHook(func(_ string, lag, took time.Duration, err error) {
		gotLag, gotTook, gotErr = lag, took, err
	}, now)

	km := kafka.Message{Time: base.Add(-2 * time.Second)}
	ctx, km, data, err := hook.BeforeHandle(context.Background(), "ticks", km, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := StartTime(ctx); !ok {
		t.Fatalf("start time not stored in context")
	}
	boom := errors.New("boom")
	hook.AfterHandle(ctx, "ticks", km, data, boom)

	if gotLag != 2*time.Second || gotTook != 40*time.Millisecond || !errors.Is(gotErr, boom) {
		t.Fatalf("unexpected observation lag=%v took=%v err=%v", gotLag, gotTook, gotErr)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
	base := errors.New("bad batch")
	err := fmt.Errorf("wrapped: %w", Permanent(base))
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("expected a permanent error wrapping base, got %v", err)
	}
	if IsPermanent(base) {
		t.Fatalf("plain errors are not permanent")
	}
}
