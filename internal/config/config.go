package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Run modes.
const (
	ModeOnce  = "once"
	ModeServe = "serve"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
)

// Sunset lookup modes.
const (
	LookupAPI   = "api"
	LookupSolar = "solar"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	RunMode         string        `envconfig:"RUN_MODE" default:"once"`
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// RunTimeout bounds a single run. Zero disables the bound.
	RunTimeout  time.Duration `envconfig:"RUN_TIMEOUT" default:"30m"`
	RunInterval time.Duration `envconfig:"RUN_INTERVAL" default:"24h"`
	// RunDate is YYYY-MM-DD. Empty means today in UTC.
	RunDate string    `envconfig:"RUN_DATE"`
	Date    time.Time `ignored:"true"`

	PointsFile     string  `envconfig:"POINTS_FILE" default:"data/zip_codes.csv"`
	ContiguousOnly bool    `envconfig:"CONTIGUOUS_ONLY" default:"true"`
	GridSize       float64 `envconfig:"GRID_SIZE" default:"1.0"`

	FetchConcurrency    int           `envconfig:"FETCH_CONCURRENCY" default:"100"`
	FetchMinInterval    time.Duration `envconfig:"FETCH_MIN_INTERVAL" default:"100ms"`
	FetchMaxAttempts    int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	FetchBackoffInitial time.Duration `envconfig:"FETCH_BACKOFF_INITIAL" default:"200ms"`
	FetchBackoffMax     time.Duration `envconfig:"FETCH_BACKOFF_MAX" default:"5s"`
	MaxFailureRate      float64       `envconfig:"MAX_FAILURE_RATE" default:"0.5"`

	CacheBackend  string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheSize     int           `envconfig:"CACHE_SIZE" default:"10000"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SQLitePath    string        `envconfig:"SQLITE_PATH" default:"sunset_cache.db"`

	LookupMode       string        `envconfig:"LOOKUP_MODE" default:"api"`
	SunsetAPIURL     string        `envconfig:"SUNSET_API_URL" default:"https://api.sunrise-sunset.org/json"`
	SunsetAPITimeout time.Duration `envconfig:"SUNSET_API_TIMEOUT" default:"10s"`
	BreakerFailures  uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerTimeout   time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`

	CorrectionModel            string  `envconfig:"CORRECTION_MODEL" default:"longitude"`
	CorrectionMinutesPerDegree float64 `envconfig:"CORRECTION_MINUTES_PER_DEGREE" default:"4"`

	OutputDir string `envconfig:"OUTPUT_DIR" default:"output"`

	KafkaEnabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"sunset-results"`
}

// Load reads an optional .env file, then configuration from environment
// variables, applying defaults where unset.
func Load() (*Config, error) {
	return load(".env")
}

func load(dotenv string) (*Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenv, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.RunMode {
	case ModeOnce, ModeServe:
	default:
		return fmt.Errorf("invalid RUN_MODE %q: want once or serve", c.RunMode)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.RunTimeout < 0 {
		return errors.New("RUN_TIMEOUT must not be negative")
	}
	if c.RunMode == ModeServe && c.RunInterval <= 0 {
		return errors.New("RUN_INTERVAL must be positive in serve mode")
	}
	if c.RunDate != "" {
		d, err := time.Parse("2006-01-02", c.RunDate)
		if err != nil {
			return fmt.Errorf("invalid RUN_DATE %q: %w", c.RunDate, err)
		}
		c.Date = d
	}

	if c.PointsFile == "" {
		return errors.New("POINTS_FILE is required")
	}
	if c.GridSize <= 0 {
		return errors.New("GRID_SIZE must be positive")
	}

	if c.FetchConcurrency < 1 {
		return errors.New("FETCH_CONCURRENCY must be at least 1")
	}
	if c.FetchMinInterval < 0 {
		return errors.New("FETCH_MIN_INTERVAL must not be negative")
	}
	if c.FetchMaxAttempts < 1 {
		return errors.New("FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.FetchBackoffInitial <= 0 || c.FetchBackoffMax <= 0 {
		return errors.New("FETCH_BACKOFF_INITIAL and FETCH_BACKOFF_MAX must be positive")
	}
	if c.FetchBackoffInitial > c.FetchBackoffMax {
		return errors.New("FETCH_BACKOFF_INITIAL must not exceed FETCH_BACKOFF_MAX")
	}
	if c.MaxFailureRate <= 0 || c.MaxFailureRate > 1 {
		return fmt.Errorf("MAX_FAILURE_RATE must be in (0, 1], got %g", c.MaxFailureRate)
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when CACHE_BACKEND is redis")
		}
	case CacheSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when CACHE_BACKEND is sqlite")
		}
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: want memory, redis or sqlite", c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}

	switch c.LookupMode {
	case LookupSolar:
	case LookupAPI:
		if c.SunsetAPIURL == "" {
			return errors.New("SUNSET_API_URL is required when LOOKUP_MODE is api")
		}
		if c.SunsetAPITimeout <= 0 {
			return errors.New("SUNSET_API_TIMEOUT must be positive")
		}
		if c.BreakerFailures == 0 {
			return errors.New("BREAKER_FAILURES must be at least 1")
		}
	default:
		return fmt.Errorf("invalid LOOKUP_MODE %q: want api or solar", c.LookupMode)
	}

	switch c.CorrectionModel {
	case "longitude", "astronomical":
	default:
		return fmt.Errorf("invalid CORRECTION_MODEL %q: want longitude or astronomical", c.CorrectionModel)
	}
	if c.CorrectionMinutesPerDegree <= 0 {
		return errors.New("CORRECTION_MINUTES_PER_DEGREE must be positive")
	}

	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}
