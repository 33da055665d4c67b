package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Reference  ReferenceConfig
	Extraction ExtractionConfig
	Validation ValidationConfig
	Scheduler  SchedulerConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type StorageConfig struct {
	Driver   string
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	ReportTTLSec int
}

// ReferenceConfig points at the risk system export. Tables maps a derivative
// type (any case) to the sheet or CSV file holding its reference rows.
type ReferenceConfig struct {
	Path        string
	Format      string
	CacheTTLSec int
	Tables      map[string]string
}

type ExtractionConfig struct {
	TemplatePath string
	MaxFileSize  int64
}

type ValidationConfig struct {
	FXTolerance float64
}

type SchedulerConfig struct {
	Enabled     bool
	IntervalSec int
	InboxDir    string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/termsheet")

	v.SetEnvPrefix("TERMSHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.Postgres.DSN == "" {
		return errors.New("storage.postgres.dsn is required for the postgres driver")
	}
	switch c.Reference.Format {
	case "xlsx", "csv":
	default:
		return fmt.Errorf("unknown reference format %q", c.Reference.Format)
	}
	if c.Validation.FXTolerance < 0 {
		return errors.New("validation.fxTolerance must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 20971520)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "./data/termsheets.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.reportTTLSec", 3600)

	v.SetDefault("reference.path", "./data/risk_system.xlsx")
	v.SetDefault("reference.format", "xlsx")
	v.SetDefault("reference.cacheTTLSec", 300)
	v.SetDefault("reference.tables", map[string]string{
		"interestrateswap":      "interest_risk_swap",
		"crosscurrencyswap":     "currency_risk_swap",
		"amortisedscheduleswap": "amortized_schedule_swap",
	})

	v.SetDefault("extraction.maxFileSize", 20971520)

	v.SetDefault("validation.fxTolerance", 0.0001)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.intervalSec", 300)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
