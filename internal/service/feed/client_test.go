package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/pkg/backoff"
	xlogger "BriefMaker/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTicks(string, int)         {}
func (nopMetrics) RecordDropped(string, int)       {}
func (nopMetrics) RecordWindow(string)             {}
func (nopMetrics) RecordGapSeconds(int)            {}
func (nopMetrics) RecordSequenceViolation(string)  {}
func (nopMetrics) RecordReplayProgress(time.Time)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}

type chanSubmitter struct {
	mu  sync.Mutex
	got [][]byte
	ch  chan struct{}
}

func (s *chanSubmitter) Submit(_ context.Context, raw []byte) error {
	s.mu.Lock()
	s.got = append(s.got, raw)
	s.mu.Unlock()
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return nil
}

func TestClientSubmitsBinaryFramesAndReconnects(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	}))
	defer srv.Close()

	sub := &chanSubmitter{ch: make(chan struct{}, 8)}
	c := New(Config{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		PingInterval: 50 * time.Millisecond,
		Reconnect:    backoff.Config{InitialInterval: 10 * time.Millisecond, MaxElapsedTime: time.Second},
	}, sub, nopMetrics{}, xlogger.Nop(), ratelimit.New(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// the server closes after every frame, so two frames mean a reconnect
	for i := 0; i < 2; i++ {
		select {
		case <-sub.ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.got) < 2 || string(sub.got[0]) != string([]byte{1, 2, 3}) {
		t.Fatalf("unexpected frames %v", sub.got)
	}
	if c.Frames() < 2 {
		t.Fatalf("expected at least two frames, got %d", c.Frames())
	}
}
