package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/pkg/backoff"
	xlogger "BriefMaker/pkg/logger"
)

// Submitter receives one raw tick batch per binary frame.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) error
}

type Config struct {
	URL          string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	Reconnect    backoff.Config
}

// Client reads tick batches from a websocket feed and hands them to the
// submitter, reconnecting with backoff until its context ends.
type Client struct {
	cfg       Config
	submitter Submitter
	metrics   domrepo.Metrics
	logger    *xlogger.Logger
	limiter   *ratelimit.Limiter
	dialer    *websocket.Dialer

	frames atomic.Uint64
}

func New(cfg Config, submitter Submitter, metrics domrepo.Metrics, logger *xlogger.Logger, limiter *ratelimit.Limiter) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	return &Client{
		cfg:       cfg,
		submitter: submitter,
		metrics:   metrics,
		logger:    logger,
		limiter:   limiter,
		dialer:    websocket.DefaultDialer,
	}
}

// Run blocks until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		var conn *websocket.Conn
		err := backoff.Execute(ctx, "feed_connect", c.cfg.Reconnect, c.logger, func(ctx context.Context) error {
			var err error
			conn, _, err = c.dialer.DialContext(ctx, c.cfg.URL, nil)
			return err
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.metrics.RecordError("feed_connect")
			c.logger.Error("feed connect failed", xlogger.String("url", c.cfg.URL), xlogger.Error(err))
			continue
		}

		c.logger.Info("feed connected", xlogger.String("url", c.cfg.URL))
		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.RecordError("feed_read")
		c.logger.Warn("feed disconnected, reconnecting", xlogger.Error(err))
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(ctx, conn)
	}()
	defer func() {
		cancel()
		wg.Wait()
		_ = conn.Close()
	}()
	// closing the conn unblocks ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		kind, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		if kind != websocket.BinaryMessage {
			continue
		}
		c.frames.Add(1)
		if err := c.submitter.Submit(ctx, b); err != nil && c.limiter.Allow("feed_submit") {
			c.logger.Warn("feed frame rejected", xlogger.Int("bytes", len(b)), xlogger.Error(err))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Frames counts binary frames received since start.
func (c *Client) Frames() uint64 { return c.frames.Load() }
