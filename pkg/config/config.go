package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"BriefMaker/pkg/backoff"
	"BriefMaker/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Logger      struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes" default:"65536"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled" default:"true"`
		Brokers      []string `yaml:"brokers" validate:"dive,required"`
		TickTopic    string   `yaml:"tick_topic" default:"briefmaker.ticks"`
		BriefTopic   string   `yaml:"brief_topic" default:"briefmaker.briefs"`
		LogsTopic    string   `yaml:"logs_topic" default:"briefmaker.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID         string        `yaml:"group_id" default:"briefmaker"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest" validate:"oneof=earliest latest"`
			BufferSize      int           `yaml:"buffer_size" default:"64"`
			RetryMax        int           `yaml:"retry_max" default:"3"`
			BackoffMin      time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax      time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic        string        `yaml:"dlq_topic"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string         `yaml:"host" default:"localhost" validate:"required"`
		Port             int            `yaml:"port" default:"9000"`
		Database         string         `yaml:"database" default:"briefmaker" validate:"required"`
		User             string         `yaml:"user" default:"default"`
		Password         string         `yaml:"password"`
		UseHTTP          bool           `yaml:"use_http"`
		AsyncInsert      bool           `yaml:"async_insert"`
		WaitForAsync     bool           `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration  `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration  `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration  `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration  `yaml:"max_execution_time" default:"60s"`
		BriefTable       string         `yaml:"brief_table" default:"briefs"`
		MomentTable      string         `yaml:"moment_table" default:"stream_moments"`
		Retry            backoff.Config `yaml:"retry"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl" default:"1h"`
	} `yaml:"redis"`
	Feed struct {
		Enabled      bool           `yaml:"enabled"`
		URL          string         `yaml:"url" validate:"required_if=Enabled true"`
		PingInterval time.Duration  `yaml:"ping_interval" default:"20s"`
		ReadTimeout  time.Duration  `yaml:"read_timeout" default:"60s"`
		Reconnect    backoff.Config `yaml:"reconnect"`
	} `yaml:"feed"`
	Indicators struct {
		URL        string        `yaml:"url"`
		Timeout    time.Duration `yaml:"timeout" default:"1s"`
		MinHistory int           `yaml:"min_history" default:"34" validate:"min=1"`
		MaxHistory int           `yaml:"max_history" default:"200"`
		Attempts   int           `yaml:"attempts" default:"2" validate:"min=1"`
	} `yaml:"indicators"`
	Session struct {
		Epoch          string        `yaml:"epoch" default:"2010-01-01"`
		StartHour      int           `yaml:"start_hour" default:"6" validate:"min=0,max=23"`
		EndHour        int           `yaml:"end_hour" default:"14" validate:"min=1,max=24"`
		Resolution     time.Duration `yaml:"resolution" default:"6s"`
		Timezone       string        `yaml:"timezone" default:"America/Los_Angeles"`
		PreBeginBuffer string        `yaml:"pre_begin_buffer" default:"6:25:01"`
		BeginRecord    string        `yaml:"begin_record" default:"6:25:06"`
		EndRecord      string        `yaml:"end_record" default:"13:00:00"`
	} `yaml:"session"`
	Brief struct {
		Symbols         []string      `yaml:"symbols" validate:"required,min=1,dive,required"`
		Indexes         []string      `yaml:"indexes"`
		HeaderSlots     int           `yaml:"header_slots" default:"32"`
		FieldsPerSymbol int           `yaml:"fields_per_symbol" default:"32"`
		ReplayAmount    uint32        `yaml:"replay_amount" default:"450"`
		MaxWaitingLoops int           `yaml:"max_waiting_loops" default:"200" validate:"min=0"`
		PageSize        int           `yaml:"page_size" default:"3600" validate:"min=1"`
		LargeGap        time.Duration `yaml:"large_gap" default:"1h"`
		RangeWarnings   bool          `yaml:"range_warnings" default:"true"`
		CommitQueue     int           `yaml:"commit_queue" default:"64" validate:"min=1"`
	} `yaml:"brief"`
	Repair struct {
		PriceMin        float32 `yaml:"price_min" default:"0.03"`
		PriceMax        float32 `yaml:"price_max" default:"2000"`
		SyntheticOffset float32 `yaml:"synthetic_offset" default:"0.005"`
		QuoteStep       float32 `yaml:"quote_step" default:"0.01"`
		MinQuoteGap     float32 `yaml:"min_quote_gap" default:"0.005"`
		HalfGap         float32 `yaml:"half_gap" default:"0.0025"`
		MissingSpread   float32 `yaml:"missing_spread" default:"0.997"`
		BandPct         float32 `yaml:"band_pct" default:"0.01"`
		BandAbs         float32 `yaml:"band_abs" default:"0.01"`
	} `yaml:"repair"`
	RateLimit struct {
		Burst  float64 `yaml:"burst" default:"5"`
		Refill float64 `yaml:"refill_per_sec" default:"0.2"`
	} `yaml:"rate_limit"`
}

// calendarSlots + index readings + the id.
const minHeaderSlots = 1 + 10 + 16

var validate = validator.New()

// Load reads and parses a YAML configuration file, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load for an in-memory document.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// decode unmarshals b over a defaulted Config so that keys present in the
// document, false booleans included, win over struct defaults.
func decode(b []byte) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
		c.Feed.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}

func (c *Config) finish() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks the rules that struct tags cannot express.
func (c *Config) Validate() error {
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must list at least one broker when kafka is enabled")
	}

	s := c.Session
	if s.EndHour <= s.StartHour {
		return fmt.Errorf("session.end_hour (%d) must be after session.start_hour (%d)", s.EndHour, s.StartHour)
	}
	if s.Resolution < time.Second || s.Resolution%time.Second != 0 {
		return fmt.Errorf("session.resolution must be a whole number of seconds, got %s", s.Resolution)
	}
	if time.Duration(s.EndHour-s.StartHour)*time.Hour%s.Resolution != 0 {
		return fmt.Errorf("session length must be a multiple of session.resolution")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	if _, err := time.Parse(time.DateOnly, s.Epoch); err != nil {
		return fmt.Errorf("session.epoch: %w", err)
	}
	pre, err := util.ParseClock(s.PreBeginBuffer)
	if err != nil {
		return fmt.Errorf("session.pre_begin_buffer: %w", err)
	}
	begin, err := util.ParseClock(s.BeginRecord)
	if err != nil {
		return fmt.Errorf("session.begin_record: %w", err)
	}
	end, err := util.ParseClock(s.EndRecord)
	if err != nil {
		return fmt.Errorf("session.end_record: %w", err)
	}
	if pre > begin || begin >= end {
		return fmt.Errorf("session: want pre_begin_buffer <= begin_record < end_record")
	}
	if begin < time.Duration(s.StartHour)*time.Hour || end >= time.Duration(s.EndHour)*time.Hour {
		return fmt.Errorf("session: record window %s-%s must lie inside the trading hours", util.FormatClock(begin), util.FormatClock(end))
	}

	b := c.Brief
	if b.FieldsPerSymbol != 32 {
		return fmt.Errorf("brief.fields_per_symbol must be 32, got %d", b.FieldsPerSymbol)
	}
	if b.HeaderSlots < minHeaderSlots {
		return fmt.Errorf("brief.header_slots must be at least %d, got %d", minHeaderSlots, b.HeaderSlots)
	}
	if len(b.Symbols)+len(b.Indexes) > 256 {
		return fmt.Errorf("brief: %d symbols and %d indexes do not fit one-byte ids", len(b.Symbols), len(b.Indexes))
	}

	r := c.Repair
	if r.PriceMin <= 0 || r.PriceMax <= r.PriceMin {
		return fmt.Errorf("repair: want 0 < price_min < price_max")
	}
	if r.MissingSpread <= 0 || r.MissingSpread > 1 {
		return fmt.Errorf("repair.missing_spread must be in (0, 1]")
	}
	return nil
}

// Clocks returns the parsed session offsets. Call only on a validated config.
func (c *Config) Clocks() (preBegin, begin, end time.Duration) {
	preBegin, _ = util.ParseClock(c.Session.PreBeginBuffer)
	begin, _ = util.ParseClock(c.Session.BeginRecord)
	end, _ = util.ParseClock(c.Session.EndRecord)
	return preBegin, begin, end
}
