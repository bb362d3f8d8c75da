package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"BriefMaker/internal/domain/models"
	"BriefMaker/internal/domain/repository"
	"BriefMaker/internal/domain/service"
	"BriefMaker/internal/handler/api"
	internalrepo "BriefMaker/internal/repository"
	"BriefMaker/internal/service/cache"
	"BriefMaker/internal/service/feed"
	"BriefMaker/internal/service/ratelimit"
	"BriefMaker/internal/services/indicators"
	"BriefMaker/internal/usecase"
	pkgch "BriefMaker/pkg/clickhouse"
	"BriefMaker/pkg/config"
	xhttp "BriefMaker/pkg/http"
	pkgkafka "BriefMaker/pkg/kafka"
	xlogger "BriefMaker/pkg/logger"
	"BriefMaker/pkg/metrics"
	"BriefMaker/pkg/server"
	"BriefMaker/pkg/tinytime"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the app logger. Repeated warnings and errors are
// aggregated to the logs topic when the collector is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*xlogger.Logger, error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logger.Collector.Enabled && producer != nil {
		l.AddCollector(&xlogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.CountThreshold,
			Topic:          cfg.Kafka.LogsTopic,
			Service:        "briefmaker",
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Burst, cfg.RateLimit.Refill)
}

func ProvideCodec(cfg *config.Config) (*tinytime.Codec, error) {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session timezone: %w", err)
	}
	epoch, err := time.Parse(time.DateOnly, cfg.Session.Epoch)
	if err != nil {
		return nil, fmt.Errorf("session epoch: %w", err)
	}
	return tinytime.New(
		tinytime.WithEpoch(epoch),
		tinytime.WithSession(time.Duration(cfg.Session.StartHour)*time.Hour, time.Duration(cfg.Session.EndHour)*time.Hour),
		tinytime.WithResolution(cfg.Session.Resolution),
		tinytime.WithLocation(loc),
	)
}

func ProvideSession(cfg *config.Config, codec *tinytime.Codec) models.Session {
	pre, begin, end := cfg.Clocks()
	return models.Session{
		Location:       codec.Location(),
		PreBeginBuffer: pre,
		BeginRecord:    begin,
		EndRecord:      end,
	}
}

func ProvideLayout(cfg *config.Config) (models.Layout, error) {
	l := models.Layout{
		Symbols:     len(cfg.Brief.Symbols),
		Indexes:     len(cfg.Brief.Indexes),
		HeaderSlots: cfg.Brief.HeaderSlots,
	}
	if err := l.Validate(); err != nil {
		return models.Layout{}, err
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config, log *xlogger.Logger) (*pkgch.Client, error) {
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := client.WaitReady(ctx, ch.Retry, log.Named("clickhouse")); err != nil {
		_ = client.Close()
		return nil, err
	}
	stmts := append(internalrepo.BriefSchema(ch.Database, ch.BriefTable), internalrepo.MomentSchema(ch.Database, ch.MomentTable))
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse ready", xlogger.String("database", ch.Database))
	return client, nil
}

func ProvideBriefStorage(client *pkgch.Client, cfg *config.Config, log *xlogger.Logger) repository.BriefStorage {
	return internalrepo.NewClickHouseBriefStorage(client.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.BriefTable, log.Named("brief_storage"))
}

func ProvideMomentSource(client *pkgch.Client, cfg *config.Config) repository.MomentSource {
	return internalrepo.NewClickHouseMomentSource(client.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.MomentTable)
}

// ProvideBriefPublisher returns nil when Kafka is off.
func ProvideBriefPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.BriefPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaBriefPublisher(producer, cfg.Kafka.BriefTopic)
}

// ProvideRedisCache returns nil when Redis is off.
func ProvideRedisCache(cfg *config.Config) *cache.RedisCache {
	if !cfg.Redis.Enabled {
		return nil
	}
	return cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "briefmaker:",
	})
}

// ProvideBriefCache prefers Redis and falls back to an in-process TTL cache.
func ProvideBriefCache(redis *cache.RedisCache) repository.BriefCache {
	if redis != nil {
		return redis
	}
	return cache.NewTTLCache()
}

func ProvideIndicatorFeed(cfg *config.Config, m repository.Metrics, log *xlogger.Logger, limiter *ratelimit.Limiter) usecase.IndicatorFeed {
	ic := cfg.Indicators
	var engine service.IndicatorEngine = indicators.ZeroEngine{}
	if ic.URL != "" {
		engine = indicators.NewHTTPEngine(ic.URL, ic.Timeout, ic.Attempts)
	}
	return indicators.NewGate(engine, ic.MinHistory, ic.MaxHistory, ic.Timeout, m, log.Named("indicators"), limiter)
}

func ProvideWindowStore(layout models.Layout) *usecase.WindowStore {
	return usecase.NewWindowStore(layout.Symbols)
}

func ProvideIndexBoard(layout models.Layout) *models.IndexBoard {
	return models.NewIndexBoard(layout.Indexes)
}

func ProvideTickDispatcher(
	store *usecase.WindowStore,
	indexes *models.IndexBoard,
	layout models.Layout,
	m repository.Metrics,
	log *xlogger.Logger,
	limiter *ratelimit.Limiter,
) *usecase.TickDispatcher {
	return usecase.NewTickDispatcher(store, indexes, layout, m, log.Named("dispatcher"), limiter)
}

func ProvideRepairConfig(cfg *config.Config) usecase.RepairConfig {
	out := usecase.DefaultRepairConfig()
	r := cfg.Repair
	// a zero in the file keeps the built-in value
	for _, o := range []struct {
		dst *float32
		v   float32
	}{
		{&out.PriceMin, r.PriceMin},
		{&out.PriceMax, r.PriceMax},
		{&out.SyntheticOffset, r.SyntheticOffset},
		{&out.QuoteStep, r.QuoteStep},
		{&out.MinQuoteGap, r.MinQuoteGap},
		{&out.HalfGap, r.HalfGap},
		{&out.MissingSpread, r.MissingSpread},
		{&out.BandPct, r.BandPct},
		{&out.BandAbs, r.BandAbs},
	} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}
	out.MaxWaitingLoops = cfg.Brief.MaxWaitingLoops
	out.RangeWarnings = cfg.Brief.RangeWarnings
	return out
}

func ProvideWindowFinalizer(
	cfg *config.Config,
	store *usecase.WindowStore,
	indexes *models.IndexBoard,
	codec *tinytime.Codec,
	session models.Session,
	layout models.Layout,
	feed usecase.IndicatorFeed,
	storage repository.BriefStorage,
	publisher repository.BriefPublisher,
	briefCache repository.BriefCache,
	m repository.Metrics,
	log *xlogger.Logger,
	limiter *ratelimit.Limiter,
	repair usecase.RepairConfig,
) *usecase.WindowFinalizer {
	return usecase.NewWindowFinalizer(usecase.FinalizerDeps{
		Store:      store,
		Indexes:    indexes,
		Codec:      codec,
		Session:    session,
		Layout:     layout,
		Tickers:    cfg.Brief.Symbols,
		Indicators: feed,
		Storage:    storage,
		Publisher:  publisher,
		Cache:      briefCache,
		CacheTTL:   cfg.Redis.TTL,
		Metrics:    m,
		Logger:     log.Named("finalizer"),
		Limiter:    limiter,

		Retry:       cfg.ClickHouse.Retry,
		CommitQueue: cfg.Brief.CommitQueue,
	}, repair)
}

func ProvideBriefPipeline(
	dispatcher *usecase.TickDispatcher,
	finalizer *usecase.WindowFinalizer,
	codec *tinytime.Codec,
	m repository.Metrics,
	log *xlogger.Logger,
) *usecase.BriefPipeline {
	return usecase.NewBriefPipeline(dispatcher, finalizer, codec.Resolution(), m, log.Named("pipeline"))
}

func ProvideIngestor(
	cfg *config.Config,
	pipeline *usecase.BriefPipeline,
	source repository.MomentSource,
	session models.Session,
	layout models.Layout,
	m repository.Metrics,
	log *xlogger.Logger,
	limiter *ratelimit.Limiter,
) *usecase.GapRecoveryIngestor {
	return usecase.NewGapRecoveryIngestor(pipeline, source, session, layout, usecase.IngestorConfig{
		PageSize: cfg.Brief.PageSize,
		LargeGap: cfg.Brief.LargeGap,
		Retry:    cfg.ClickHouse.Retry,
	}, m, log.Named("ingestor"), limiter)
}

func ProvideBriefService(
	cfg *config.Config,
	store *usecase.WindowStore,
	finalizer *usecase.WindowFinalizer,
	pipeline *usecase.BriefPipeline,
	ingestor *usecase.GapRecoveryIngestor,
	storage repository.BriefStorage,
	briefCache repository.BriefCache,
	codec *tinytime.Codec,
	session models.Session,
	layout models.Layout,
	log *xlogger.Logger,
) *usecase.BriefService {
	return usecase.NewBriefService(store, finalizer, pipeline, ingestor, storage, briefCache,
		codec, session, layout, cfg.Brief.Symbols, cfg.Brief.ReplayAmount, log.Named("service"))
}

// ProvideTickBatchHandler registers the service on the tick topic.
func ProvideTickBatchHandler(cfg *config.Config, svc *usecase.BriefService, m repository.Metrics) *usecase.TickBatchHandler {
	return usecase.NewTickBatchHandler(cfg.Kafka.TickTopic, svc, m)
}

// ProvideKafkaConsumer creates the tick consumer, or nil when Kafka is off.
// One worker keeps batches in partition order.
func ProvideKafkaConsumer(cfg *config.Config, handler *usecase.TickBatchHandler, log *xlogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(c.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(log.Named("kafka_consumer")),
		pkgkafka.WithConsumerRegisterer(prometheus.DefaultRegisterer),
		pkgkafka.WithConsumerHooks(pkgkafka.TimingHook(handler.ObserveConsume, nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideFeed creates the websocket feed reader, or nil when it is off.
func ProvideFeed(cfg *config.Config, svc *usecase.BriefService, m repository.Metrics, log *xlogger.Logger, limiter *ratelimit.Limiter) *feed.Client {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(feed.Config{
		URL:          cfg.Feed.URL,
		PingInterval: cfg.Feed.PingInterval,
		ReadTimeout:  cfg.Feed.ReadTimeout,
		Reconnect:    cfg.Feed.Reconnect,
	}, svc, m, log.Named("feed"), limiter)
}

func ProvideBriefsHandler(cfg *config.Config, svc *usecase.BriefService, log *xlogger.Logger) *api.BriefsEchoHandler {
	return api.NewBriefsEchoHandler(log.Named("api"), svc, cfg.Server.MaxBodyBytes)
}

func ProvideHTTPServer(cfg *config.Config, h *api.BriefsEchoHandler, log *xlogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, log.Named("http"),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithBodyLimit(cfg.Server.MaxBodyBytes),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...),
		xhttp.WithWritePaths(api.TicksPath),
	)
}

// ProvideApp creates the application server. Optional components that are
// switched off arrive as nil and are left out.
func ProvideApp(
	cfg *config.Config,
	log *xlogger.Logger,
	svc *usecase.BriefService,
	finalizer *usecase.WindowFinalizer,
	httpServer *xhttp.Server,
	feedClient *feed.Client,
	consumer *pkgkafka.Consumer,
	handler *usecase.TickBatchHandler,
	producer *pkgkafka.Producer,
	redis *cache.RedisCache,
	chClient *pkgch.Client,
) *server.App {
	opts := []server.Option{server.WithShutdownTimeout(cfg.Server.ShutdownTimeout)}
	if feedClient != nil {
		opts = append(opts, server.WithFeed(feedClient))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, handler))
	}
	// the committer publishes to kafka, so it stops first
	opts = append(opts, server.WithCloser("brief committer", finalizer))
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
	}
	if redis != nil {
		opts = append(opts, server.WithCloser("redis", redis))
	}
	opts = append(opts, server.WithCloser("clickhouse", chClient), server.WithCloser("log collector", log))
	return server.New(log, svc, httpServer, opts...)
}
