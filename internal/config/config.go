// Package config loads worker settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the worker.
type Config struct {
	Database  Database  `yaml:"database"`
	Queue     Queue     `yaml:"queue"`
	Worker    Worker    `yaml:"worker"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Database describes the store connection. DSN wins over the individual
// Postgres parts when set.
type Database struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Server          string        `yaml:"server"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	CreateSchema    bool          `yaml:"create_schema"`
}

// Queue describes the SQS queue.
type Queue struct {
	URL               string        `yaml:"url"`
	Region            string        `yaml:"region"`
	Endpoint          string        `yaml:"endpoint"`
	MaxMessages       int32         `yaml:"max_messages"`
	WaitTime          time.Duration `yaml:"wait_time"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

// Worker tunes the ingestion pipeline.
type Worker struct {
	BatchSize int `yaml:"batch_size"`
	Pollers   int `yaml:"pollers"`
}

// Log selects the log handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Telemetry controls metric export.
type Telemetry struct {
	Metrics        bool          `yaml:"metrics"`
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: Database{
			Driver: "postgres",
			Server: "localhost",
			Port:   "5432",
			User:   "postgres",
			Name:   "fastlogqueue",
		},
		Queue: Queue{
			MaxMessages:       10,
			WaitTime:          20 * time.Second,
			VisibilityTimeout: 60 * time.Second,
		},
		Worker: Worker{
			BatchSize: 100,
			Pollers:   1,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Telemetry: Telemetry{
			MetricInterval: time.Minute,
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies environment
// overrides. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.DSN)
	str("POSTGRES_SERVER", &c.Database.Server)
	str("POSTGRES_PORT", &c.Database.Port)
	str("POSTGRES_USER", &c.Database.User)
	str("POSTGRES_PASSWORD", &c.Database.Password)
	str("POSTGRES_DB", &c.Database.Name)
	str("QUEUE_URL", &c.Queue.URL)
	str("AWS_REGION", &c.Queue.Region)
	str("SQS_ENDPOINT", &c.Queue.Endpoint)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("BATCH_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BATCH_SIZE: %w", err)
		}
		c.Worker.BatchSize = n
	}
	return nil
}

// DatabaseDSN returns the configured DSN or assembles a Postgres URL from
// the individual parts.
func (c Config) DatabaseDSN() string {
	d := c.Database
	if d.DSN != "" || d.Driver != "postgres" {
		return d.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Server, d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	}
	return u.String()
}

// MaxBatchSize is the largest accepted worker.batch_size. The dedup lookup
// binds one parameter per message and must stay under the SQLite bind limit.
const MaxBatchSize = 10000

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Worker.BatchSize < 1 || c.Worker.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("worker.batch_size must be between 1 and %d, got %d", MaxBatchSize, c.Worker.BatchSize))
	}
	if c.Worker.Pollers < 1 {
		errs = append(errs, fmt.Errorf("worker.pollers must be positive, got %d", c.Worker.Pollers))
	}
	if c.Queue.MaxMessages < 1 || c.Queue.MaxMessages > 10 {
		errs = append(errs, fmt.Errorf("queue.max_messages must be between 1 and 10, got %d", c.Queue.MaxMessages))
	}
	if c.Queue.WaitTime < 0 || c.Queue.WaitTime > 20*time.Second {
		errs = append(errs, fmt.Errorf("queue.wait_time must be between 0s and 20s, got %s", c.Queue.WaitTime))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a configured log level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}
