// Package config loads server configuration from defaults, an optional
// YAML file, a .env file and PAYROLL_ environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/payroll-ledger/payroll"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	Payroll    PayrollConfig    `mapstructure:"payroll"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type ServerConfig struct {
	Port      int        `mapstructure:"port"`
	CORS      CORSConfig `mapstructure:"cors"`
	RateLimit int        `mapstructure:"rate_limit"` // requests per minute per IP, 0 disables
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// StoreConfig selects the journal backend.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // memory, sqlite or postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// Disabled trusts the X-Caller-ID header instead of a bearer token.
	// Local development only.
	Disabled bool `mapstructure:"disabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type PayrollConfig struct {
	SettlementTimeout time.Duration `mapstructure:"settlement_timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	OpenDayPolicy     string        `mapstructure:"open_day_policy"`
	ScheduleInterval  time.Duration `mapstructure:"schedule_interval"`
	SchedulerEnabled  bool          `mapstructure:"scheduler_enabled"`
	SeedDemo          bool          `mapstructure:"seed_demo"`
}

type SettlementConfig struct {
	// WebhookURL receives payout transfers. Empty uses the in-memory
	// recorder, which only logs.
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads the configuration. path may be empty, in which case
// ./config.yaml and ./config/config.yaml are tried and their absence is
// not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 300)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "./data/payroll.db")
	v.SetDefault("store.postgres_url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.disabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("payroll.settlement_timeout", payroll.DefaultSettlementTimeout)
	v.SetDefault("payroll.concurrency", payroll.DefaultConcurrency)
	v.SetDefault("payroll.open_day_policy", string(payroll.OpenDayHalfDay))
	v.SetDefault("payroll.schedule_interval", "1h")
	v.SetDefault("payroll.scheduler_enabled", false)
	v.SetDefault("payroll.seed_demo", false)

	v.SetDefault("settlement.webhook_url", "")
	v.SetDefault("settlement.timeout", "10s")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("config: store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("config: store.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if !c.Auth.Disabled && len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Payroll.SettlementTimeout <= 0 {
		return errors.New("config: payroll.settlement_timeout must be positive")
	}
	if c.Payroll.Concurrency <= 0 {
		return errors.New("config: payroll.concurrency must be positive")
	}
	if c.Payroll.SchedulerEnabled && c.Payroll.ScheduleInterval <= 0 {
		return errors.New("config: payroll.schedule_interval must be positive")
	}
	if _, err := payroll.ParseOpenDayPolicy(c.Payroll.OpenDayPolicy); err != nil {
		return fmt.Errorf("config: payroll.open_day_policy: %w", err)
	}
	return nil
}

// OpenDayPolicy returns the validated policy.
func (c *Config) OpenDayPolicy() payroll.OpenDayPolicy {
	p, _ := payroll.ParseOpenDayPolicy(c.Payroll.OpenDayPolicy)
	return p
}
