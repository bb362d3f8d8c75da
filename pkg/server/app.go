package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	pkgkafka "BriefMaker/pkg/kafka"
	applogger "BriefMaker/pkg/logger"
)

// Pipeline is the brief pipeline: Start restores and replays, Flush writes
// buffered briefs.
type Pipeline interface {
	Start(ctx context.Context) error
	Flush(ctx context.Context) error
}

// FeedRunner reads the live feed until ctx ends.
type FeedRunner interface {
	Run(ctx context.Context) error
}

type TickConsumer interface {
	RegisterHandler(handler pkgkafka.MessageHandler)
	Start() error
	Stop(ctx context.Context) error
}

type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	pipeline        Pipeline
	http            HTTPServer
	feed            FeedRunner
	consumer        TickConsumer
	tickHandler     pkgkafka.MessageHandler
	closers         []namedCloser
	shutdownTimeout time.Duration
	signals         []os.Signal

	consumerStarted atomic.Bool
}

type Option func(*App)

// WithFeed runs f once startup replay is done.
func WithFeed(f FeedRunner) Option {
	return func(a *App) { a.feed = f }
}

// WithConsumer registers h on c and starts c once startup replay is done.
func WithConsumer(c TickConsumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.tickHandler = h
	}
}

// WithCloser adds a resource closed last, in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) { a.closers = append(a.closers, namedCloser{name: name, c: c}) }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// WithSignals replaces SIGINT and SIGTERM as the stop signals. No signals
// means only ctx stops the app.
func WithSignals(sig ...os.Signal) Option {
	return func(a *App) { a.signals = sig }
}

func New(log *applogger.Logger, pipeline Pipeline, http HTTPServer, opts ...Option) *App {
	a := &App{
		log:             log,
		pipeline:        pipeline,
		http:            http,
		shutdownTimeout: 15 * time.Second,
		signals:         []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until a stop signal, until ctx ends
// or until a component fails.
func (a *App) Run(ctx context.Context) error {
	if len(a.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, a.signals...)
		defer stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan struct{})
	feedDone := make(chan struct{})

	g.Go(func() error {
		return a.http.Start()
	})

	g.Go(func() error {
		if err := a.pipeline.Start(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}
		if a.consumer != nil && a.tickHandler != nil {
			a.consumer.RegisterHandler(a.tickHandler)
			if err := a.consumer.Start(); err != nil {
				return err
			}
			a.consumerStarted.Store(true)
			a.log.Info("kafka consumer started", applogger.String("topic", a.tickHandler.Topic()))
		}
		close(ready)
		return nil
	})

	g.Go(func() error {
		defer close(feedDone)
		select {
		case <-ready:
		case <-gctx.Done():
			return nil
		}
		if a.feed == nil {
			return nil
		}
		a.log.Info("live feed started")
		return a.feed.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")
		<-feedDone
		return a.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// shutdown stops the consumer, flushes pending briefs, stops HTTP, then
// closes the infrastructure clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.consumerStarted.Load() {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.pipeline.Flush(ctx); err != nil {
		a.log.Error("flush pending briefs failed", applogger.Error(err))
	}

	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
