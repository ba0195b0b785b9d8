// Package config loads runtime settings from defaults, an optional YAML
// file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sender   SenderConfig   `yaml:"sender"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig is optional; an empty Addr disables claim locking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AMQPConfig is optional; an empty URL keeps replies on the in-memory queue.
type AMQPConfig struct {
	URL string `yaml:"url"`
}

type WorkerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	ClaimTTL     time.Duration `yaml:"claim_ttl"`
	BatchSize    int           `yaml:"batch_size"`
}

type SenderConfig struct {
	Driver      string  `yaml:"driver"` // mock, ses
	From        string  `yaml:"from"`
	Region      string  `yaml:"region"`
	FailureRate float64 `yaml:"failure_rate"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "dripline",
			SSLMode: "disable",
		},
		Worker: WorkerConfig{
			TickInterval: time.Minute,
			CallTimeout:  30 * time.Second,
			ClaimTTL:     5 * time.Minute,
			BatchSize:    500,
		},
		Sender: SenderConfig{Driver: "mock", From: "outreach@example.com", Region: "us-east-1"},
		Log:    LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3},
	}
}

// Load builds a Config. path may be empty. A missing .env file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("SERVER_ADDR", &c.Server.Addr)
	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("AMQP_URL", &c.AMQP.URL)
	str("SENDER_DRIVER", &c.Sender.Driver)
	str("SENDER_FROM", &c.Sender.From)
	str("SES_REGION", &c.Sender.Region)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	var errs []error
	if v, ok := os.LookupEnv("TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TICK_INTERVAL: %w", err))
		} else {
			c.Worker.TickInterval = d
		}
	}
	if v, ok := os.LookupEnv("SENDER_FAILURE_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SENDER_FAILURE_RATE: %w", err))
		} else {
			c.Sender.FailureRate = f
		}
	}
	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		errs = append(errs, errors.New("database.host and database.name are required"))
	}
	if c.Worker.TickInterval <= 0 {
		errs = append(errs, errors.New("worker.tick_interval must be positive"))
	}
	if c.Worker.CallTimeout <= 0 {
		errs = append(errs, errors.New("worker.call_timeout must be positive"))
	}
	if c.Worker.ClaimTTL <= 0 {
		errs = append(errs, errors.New("worker.claim_ttl must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("worker.batch_size must be positive"))
	}
	switch c.Sender.Driver {
	case "mock", "ses":
	default:
		errs = append(errs, fmt.Errorf("sender.driver %q is not one of mock, ses", c.Sender.Driver))
	}
	if c.Sender.FailureRate < 0 || c.Sender.FailureRate > 1 {
		errs = append(errs, errors.New("sender.failure_rate must be within [0,1]"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}
