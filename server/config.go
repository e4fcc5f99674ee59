package server

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/topi314/clubhouse/internal/xtime"
	"github.com/topi314/clubhouse/server/store/mongostore"
	"github.com/topi314/clubhouse/server/store/pgstore"
	"github.com/topi314/clubhouse/server/store/redisstore"
)

const EnvPrefix = "CLUBHOUSE_"

// LoadConfig reads the TOML file at cfgPath over the defaults and applies CLUBHOUSE_*
// environment overrides. An empty cfgPath skips the file.
func LoadConfig(cfgPath string) (Config, error) {
	cfg := DefaultConfig()

	if cfgPath != "" {
		file, err := os.Open(cfgPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config file: %w", err)
		}
		defer func() {
			_ = file.Close()
		}()

		if _, err = toml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used for every value missing from the config file.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:      slog.LevelInfo,
			Format:     LogFormatText,
			AddSource:  false,
			QuietPaths: []string{"/health"},
		},
		Server: ServerConfig{
			Addr: ":8085",
		},
		Store: StoreConfig{
			Type: StoreTypeMemory,
			Postgres: pgstore.Config{
				Host:     "localhost",
				Port:     5432,
				Username: "postgres",
				Password: "password",
				Database: "clubhouse",
				SSLMode:  "disable",
			},
			Redis: redisstore.Config{
				Addr:       "localhost:6379",
				Prefix:     "clubhouse:",
				MaxRetries: 10,
			},
			Mongo: mongostore.Config{
				URI:        "mongodb://localhost:27017/?replicaSet=rs0",
				Database:   "clubhouse",
				MaxRetries: 10,
			},
		},
		Consistency: ConsistencyConfig{
			AtomicWrites: true,
		},
		Sweep: SweepConfig{
			OnStart:     true,
			Interval:    xtime.Duration(15 * time.Minute),
			Timeout:     xtime.Duration(5 * time.Minute),
			Every:       xtime.Duration(10 * time.Millisecond),
			Burst:       20,
			Concurrency: 4,
		},
	}
}

type Config struct {
	Dev           bool                `toml:"dev" env:"DEV"`
	Log           LogConfig           `toml:"log" envPrefix:"LOG_"`
	Server        ServerConfig        `toml:"server" envPrefix:"SERVER_"`
	Store         StoreConfig         `toml:"store" envPrefix:"STORE_"`
	Consistency   ConsistencyConfig   `toml:"consistency" envPrefix:"CONSISTENCY_"`
	Sweep         SweepConfig         `toml:"sweep" envPrefix:"SWEEP_"`
	Notifications NotificationsConfig `toml:"notifications" envPrefix:"NOTIFICATIONS_"`
}

func (c Config) String() string {
	return fmt.Sprintf("Dev: %t\nLog: %s\nServer: %s\nStore: %s\nConsistency: %s\nSweep: %s\nNotifications: %s",
		c.Dev,
		c.Log,
		c.Server,
		c.Store,
		c.Consistency,
		c.Sweep,
		c.Notifications,
	)
}

func (c Config) Validate() error {
	switch c.Log.Format {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	switch c.Store.Type {
	case StoreTypeMemory, StoreTypePostgres, StoreTypeRedis, StoreTypeMongo:
	default:
		return fmt.Errorf("invalid store type: %q", c.Store.Type)
	}
	if c.Sweep.Interval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}
	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("notifications are enabled but no webhook url is set")
	}
	return nil
}

type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

type LogConfig struct {
	Level     slog.Level `toml:"level" env:"LEVEL"`
	Format    LogFormat  `toml:"format" env:"FORMAT"`
	AddSource bool       `toml:"add_source" env:"ADD_SOURCE"`
	// QuietPaths are request paths which are not logged by the request logger.
	QuietPaths []string `toml:"quiet_paths" env:"QUIET_PATHS"`
}

func (c LogConfig) String() string {
	return fmt.Sprintf("\n Level: %s\n Format: %s\n AddSource: %t\n QuietPaths: %v",
		c.Level,
		c.Format,
		c.AddSource,
		c.QuietPaths,
	)
}

type ServerConfig struct {
	Addr string `toml:"addr" env:"ADDR"`
}

func (c ServerConfig) String() string {
	return fmt.Sprintf("\n Address: %s",
		c.Addr,
	)
}

type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeMongo    StoreType = "mongo"
)

type StoreConfig struct {
	Type     StoreType         `toml:"type" env:"TYPE"`
	Postgres pgstore.Config    `toml:"postgres" envPrefix:"POSTGRES_"`
	Redis    redisstore.Config `toml:"redis" envPrefix:"REDIS_"`
	Mongo    mongostore.Config `toml:"mongo" envPrefix:"MONGO_"`
}

func (c StoreConfig) String() string {
	var backend fmt.Stringer
	switch c.Type {
	case StoreTypePostgres:
		backend = c.Postgres
	case StoreTypeRedis:
		backend = c.Redis
	case StoreTypeMongo:
		backend = c.Mongo
	default:
		return fmt.Sprintf("\n Type: %s", c.Type)
	}
	return fmt.Sprintf("\n Type: %s%s", c.Type, backend)
}

type ConsistencyConfig struct {
	// AtomicWrites uses store transactions for member counts, membership creation and
	// event registrations when the store supports them.
	AtomicWrites bool `toml:"atomic_writes" env:"ATOMIC_WRITES"`
}

func (c ConsistencyConfig) String() string {
	return fmt.Sprintf("\n AtomicWrites: %t",
		c.AtomicWrites,
	)
}

type SweepConfig struct {
	OnStart bool `toml:"on_start" env:"ON_START"`
	// Interval between two background sweeps, 0 disables the background loop.
	Interval    xtime.Duration `toml:"interval" env:"INTERVAL"`
	Timeout     xtime.Duration `toml:"timeout" env:"TIMEOUT"`
	Every       xtime.Duration `toml:"every" env:"EVERY"`
	Burst       int            `toml:"burst" env:"BURST"`
	Concurrency int            `toml:"concurrency" env:"CONCURRENCY"`
}

func (c SweepConfig) String() string {
	return fmt.Sprintf("\n OnStart: %t\n Interval: %s\n Timeout: %s\n Every: %s\n Burst: %d\n Concurrency: %d",
		c.OnStart,
		c.Interval,
		c.Timeout,
		c.Every,
		c.Burst,
		c.Concurrency,
	)
}

type NotificationsConfig struct {
	Enabled    bool   `toml:"enabled" env:"ENABLED"`
	WebhookURL string `toml:"webhook_url" env:"WEBHOOK_URL"`
}

func (c NotificationsConfig) String() string {
	return fmt.Sprintf("\n Enabled: %t\n WebhookURL: %s",
		c.Enabled,
		c.WebhookURL,
	)
}
