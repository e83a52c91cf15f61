package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FinPeer/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format" default:"2006-01-02T15:04:05.000Z07:00"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		MetricsPath     string        `yaml:"metrics_path" default:"/metrics"`
	} `yaml:"server"`
	Valuation struct {
		MinMarketCap   float64  `yaml:"min_market_cap" default:"50" validate:"gte=0"`
		AlphaScale     float64  `yaml:"alpha_scale" default:"3" validate:"gt=0"`
		StdScaleFactor float64  `yaml:"std_scale_factor" default:"0.75" validate:"gt=0,lt=1"`
		MergeMode      string   `yaml:"merge_mode" default:"patch" validate:"oneof=patch replace"`
		Precision      int      `yaml:"precision" default:"2" validate:"gte=-1,lte=10"`
		Workers        int      `yaml:"workers" default:"1" validate:"gte=1,lte=64"`
		ExcludedCodes  []string `yaml:"excluded_codes" default:"[\"LGI\",\"GLACR\"]"`
	} `yaml:"valuation"`
	Store struct {
		Backend   string        `yaml:"backend" default:"file" validate:"oneof=file redis badger memory"`
		Dir       string        `yaml:"dir" default:"data/valuations"`
		BadgerDir string        `yaml:"badger_dir" default:"data/badger"`
		LockTTL   time.Duration `yaml:"lock_ttl" default:"30s"`
		LockRetry time.Duration `yaml:"lock_retry" default:"50ms"`
	} `yaml:"store"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"finpeer"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`
		Prefix     string        `yaml:"prefix" default:"finpeer:queue"`
	} `yaml:"queue"`
	ClickHouse struct {
		Enabled        bool          `yaml:"enabled"`
		Host           string        `yaml:"host" default:"localhost"`
		Port           int           `yaml:"port" default:"9000"`
		Database       string        `yaml:"database" default:"finpeer"`
		User           string        `yaml:"user" default:"default"`
		Password       string        `yaml:"password"`
		UseHTTP        bool          `yaml:"use_http"`
		AsyncInsert    bool          `yaml:"async_insert"`
		MaxConnections int           `yaml:"max_connections" default:"10"`
		DialTimeout    time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout    time.Duration `yaml:"read_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled          bool     `yaml:"enabled"`
		Brokers          []string `yaml:"brokers"`
		SnapshotTopic    string   `yaml:"snapshot_topic" default:"valuation.snapshots"`
		FundamentalTopic string   `yaml:"fundamentals_topic" default:"valuation.fundamentals"`
		RequiredAcks     int      `yaml:"required_acks" default:"-1"`
		Compression      string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"finpeer"`
			Lanes      int           `yaml:"lanes" default:"4"`
			LaneBuffer int           `yaml:"lane_buffer" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	EODHD struct {
		BaseURL   string        `yaml:"base_url" default:"https://eodhd.com/api"`
		APIKey    string        `yaml:"api_key"`
		Timeout   time.Duration `yaml:"timeout" default:"30s"`
		RateLimit int           `yaml:"rate_limit" default:"10" validate:"gte=1"`
		Burst     int           `yaml:"burst" default:"5" validate:"gte=1"`
		CacheTTL  time.Duration `yaml:"cache_ttl" default:"12h"`
		CacheSize int           `yaml:"cache_size" default:"2000"`
	} `yaml:"eodhd"`
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxPriceAge    time.Duration `yaml:"max_price_age" default:"15m"`
	} `yaml:"finnhub"`
	Report struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Dir     string `yaml:"dir" default:"data/reports"`
	} `yaml:"report"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Keys missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables. An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = util.SplitCSV(v)
		}
	}
	num := func(name string, dst *float64) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = f
		return nil
	}

	str("FINPEER_ENV", &c.Environment)
	str("FINPEER_LOG_LEVEL", &c.Log.Level)
	str("FINPEER_STORE_BACKEND", &c.Store.Backend)
	str("FINPEER_STORE_DIR", &c.Store.Dir)
	str("FINPEER_MERGE_MODE", &c.Valuation.MergeMode)
	str("EODHD_API_KEY", &c.EODHD.APIKey)
	str("FINNHUB_API_KEY", &c.Finnhub.APIKey)
	str("REDIS_ADDR", &c.Redis.Addr)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	list("FINNHUB_SYMBOLS", &c.Finnhub.Symbols)
	if err := num("FINPEER_MIN_MARKET_CAP", &c.Valuation.MinMarketCap); err != nil {
		return err
	}
	if err := num("FINPEER_ALPHA_SCALE", &c.Valuation.AlphaScale); err != nil {
		return err
	}
	if v, ok := lookup("FINPEER_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINPEER_WORKERS: %w", err)
		}
		c.Valuation.Workers = n
	}
	return nil
}

// Validate checks field rules and the cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%s: failed %q rule", ve[0].Namespace(), ve[0].Tag())
		}
		return err
	}
	if c.Store.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("store.backend redis requires redis.enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required when finnhub is enabled")
	}
	return nil
}

// IsExcluded reports whether code is on the exclusion list.
func (c *Config) IsExcluded(code string) bool {
	for _, x := range c.Valuation.ExcludedCodes {
		if strings.EqualFold(x, code) {
			return true
		}
	}
	return false
}
