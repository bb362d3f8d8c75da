package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	xlogger "BriefMaker/pkg/logger"
)

func fastConfig() Config {
	return Config{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsedTime: time.Second}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), "test", fastConfig(), xlogger.Nop(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestExecuteStopsOnPermanent(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad input")
	err := Execute(context.Background(), "test", fastConfig(), xlogger.Nop(), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	var maxErr *ErrMaxRetries
	if !errors.As(err, &maxErr) || !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
